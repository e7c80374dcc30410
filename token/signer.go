// Package token implements signing, issuance, and verification of the
// bearer tokens used by the core: access, refresh, password-reset,
// email-verification, and OAuth2 state tokens. All tokens are compact
// JWTs signed with a single process-wide HMAC-SHA256 secret; the claimed
// audience is enforced at verification so a token minted for one purpose
// is never accepted for another.
package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Audience identifies the purpose a token was minted for.
type Audience string

// Audience values are part of the wire format and must not change:
// issued tokens embed them in the "aud" claim.
const (
	AudienceAccess            Audience = "access_token"
	AudienceRefresh           Audience = "refresh_token"
	AudiencePasswordReset     Audience = "password_reset"
	AudienceEmailVerification Audience = "email_verification"
	AudienceOAuth2State       Audience = "oauth2"
)

var (
	// ErrInvalidToken indicates a token with a bad signature, wrong
	// audience, or broken structure. Callers should treat the token as
	// forged and require a fresh one.
	ErrInvalidToken = errors.New("token is invalid")

	// ErrExpiredToken indicates a well-formed, correctly signed token
	// whose expiry has passed. Callers may prompt for re-authentication.
	ErrExpiredToken = errors.New("token is expired")
)

// Claims is the claim set carried by every token. Subjects are always
// strings on the wire; numeric user IDs are stringified before signing
// and parsed back by the issuer's typed verify methods.
type Claims struct {
	jwt.RegisteredClaims
}

// Signer signs and verifies claim sets with a symmetric HMAC-SHA256 secret.
// It is stateless and safe for concurrent use.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer from the process-wide secret.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, errors.New("signing secret is required")
	}
	return &Signer{secret: secret}, nil
}

// Sign produces the compact serialized token for the given claims.
func (s *Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, structure, audience, and expiry, and returns
// the embedded claims. Expiry is compared against current time with no
// leeway; every other failure mode surfaces as ErrInvalidToken so the
// caller cannot distinguish why a forged token was rejected.
func (s *Signer) Verify(tokenString string, audience Audience) (*Claims, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(string(audience)),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrExpiredToken, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !t.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Decode checks only the signature and structure of a token, skipping
// claim validation. It is used on revocation paths where an expired
// token must still identify the session it belongs to.
func (s *Signer) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	t, err := parser.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil })
	if err != nil || !t.Valid {
		return nil, fmt.Errorf("%w: malformed or foreign token", ErrInvalidToken)
	}
	return claims, nil
}
