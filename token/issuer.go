package token

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default validity periods per audience.
const (
	DefaultAccessTTL            = time.Hour
	DefaultRefreshTTL           = 30 * 24 * time.Hour
	DefaultPasswordResetTTL     = 48 * time.Hour
	DefaultEmailVerificationTTL = 48 * time.Hour
	DefaultOAuth2StateTTL       = time.Hour
)

// TTLConfig pins the validity period of each token audience.
// Zero fields fall back to the package defaults.
type TTLConfig struct {
	Access            time.Duration
	Refresh           time.Duration
	PasswordReset     time.Duration
	EmailVerification time.Duration
	OAuth2State       time.Duration
}

func (c TTLConfig) withDefaults() TTLConfig {
	if c.Access <= 0 {
		c.Access = DefaultAccessTTL
	}
	if c.Refresh <= 0 {
		c.Refresh = DefaultRefreshTTL
	}
	if c.PasswordReset <= 0 {
		c.PasswordReset = DefaultPasswordResetTTL
	}
	if c.EmailVerification <= 0 {
		c.EmailVerification = DefaultEmailVerificationTTL
	}
	if c.OAuth2State <= 0 {
		c.OAuth2State = DefaultOAuth2StateTTL
	}
	return c
}

// RefreshToken is the result of issuing a refresh token. TokenID,
// IssuedAt, and ExpiresAt are returned so the caller can persist the
// outstanding-token record alongside the signed string.
type RefreshToken struct {
	Token     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer builds audience-bound claim sets and delegates signing to a
// Signer. Only refresh tokens carry a unique token ID (jti); all other
// audiences are verified statelessly.
type Issuer struct {
	signer *Signer
	ttl    TTLConfig

	// now is a seam for expiry tests.
	now func() time.Time
}

// NewIssuer creates an Issuer with the given signer and TTL configuration.
func NewIssuer(signer *Signer, ttl TTLConfig) *Issuer {
	return &Issuer{
		signer: signer,
		ttl:    ttl.withDefaults(),
		now:    time.Now,
	}
}

func (i *Issuer) claims(subject string, audience Audience, ttl time.Duration) Claims {
	now := i.now().UTC()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{string(audience)},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// IssueAccess mints a short-lived access token for the given user.
func (i *Issuer) IssueAccess(userID int64) (string, error) {
	return i.signer.Sign(i.claims(formatUserID(userID), AudienceAccess, i.ttl.Access))
}

// IssueRefresh mints a long-lived refresh token carrying a fresh random
// token ID. The returned metadata must be recorded durably before the
// token is handed to a caller.
func (i *Issuer) IssueRefresh(userID int64) (*RefreshToken, error) {
	claims := i.claims(formatUserID(userID), AudienceRefresh, i.ttl.Refresh)
	claims.ID = newTokenID()

	signed, err := i.signer.Sign(claims)
	if err != nil {
		return nil, err
	}
	return &RefreshToken{
		Token:     signed,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// IssuePasswordReset mints a password-reset token for the given user.
func (i *Issuer) IssuePasswordReset(userID int64) (string, error) {
	return i.signer.Sign(i.claims(formatUserID(userID), AudiencePasswordReset, i.ttl.PasswordReset))
}

// IssueEmailVerification mints an email-verification token whose subject
// is the address being verified.
func (i *Issuer) IssueEmailVerification(email string) (string, error) {
	return i.signer.Sign(i.claims(email, AudienceEmailVerification, i.ttl.EmailVerification))
}

// IssueOAuth2State wraps a caller-supplied anti-CSRF nonce in a signed,
// short-lived state token. The nonce may be empty.
func (i *Issuer) IssueOAuth2State(nonce string) (string, error) {
	return i.signer.Sign(i.claims(nonce, AudienceOAuth2State, i.ttl.OAuth2State))
}

// VerifyAccess verifies an access token and returns the user ID.
func (i *Issuer) VerifyAccess(tokenString string) (int64, error) {
	claims, err := i.signer.Verify(tokenString, AudienceAccess)
	if err != nil {
		return 0, err
	}
	return parseUserID(claims.Subject)
}

// VerifyRefresh verifies a refresh token cryptographically and returns
// the user ID and token ID. Revocation status is a separate, stateful
// check owned by the token store; this method does not consult it.
func (i *Issuer) VerifyRefresh(tokenString string) (userID int64, tokenID string, err error) {
	claims, err := i.signer.Verify(tokenString, AudienceRefresh)
	if err != nil {
		return 0, "", err
	}
	if claims.ID == "" {
		return 0, "", fmt.Errorf("%w: refresh token without token id", ErrInvalidToken)
	}
	userID, err = parseUserID(claims.Subject)
	if err != nil {
		return 0, "", err
	}
	return userID, claims.ID, nil
}

// VerifyPasswordReset verifies a password-reset token and returns the user ID.
func (i *Issuer) VerifyPasswordReset(tokenString string) (int64, error) {
	claims, err := i.signer.Verify(tokenString, AudiencePasswordReset)
	if err != nil {
		return 0, err
	}
	return parseUserID(claims.Subject)
}

// VerifyEmailVerification verifies an email-verification token and
// returns the subject address.
func (i *Issuer) VerifyEmailVerification(tokenString string) (string, error) {
	claims, err := i.signer.Verify(tokenString, AudienceEmailVerification)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// VerifyOAuth2State verifies a state token and returns the embedded nonce.
func (i *Issuer) VerifyOAuth2State(tokenString string) (string, error) {
	claims, err := i.signer.Verify(tokenString, AudienceOAuth2State)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// newTokenID returns a 32-character hex token ID (a uuid4 without dashes).
func newTokenID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func formatUserID(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func parseUserID(subject string) (int64, error) {
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric subject", ErrInvalidToken)
	}
	return id, nil
}
