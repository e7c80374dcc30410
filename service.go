package authcore

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/keystonehq/authcore/instrumentation"
	"github.com/keystonehq/authcore/ratelimit"
	"github.com/keystonehq/authcore/storage"
	"github.com/keystonehq/authcore/token"
)

// Service is the credential and token-lifecycle core. It owns token
// issuance and verification, refresh-session revocation, credential
// checks, provider login orchestration, and rate-limit decisions. It
// carries no HTTP surface; callers adapt it to whatever boundary they
// expose.
type Service struct {
	issuer      *token.Issuer
	signer      *token.Signer
	tokens      storage.TokenStore
	identities  IdentityStore
	provisioner IdentityProvisioner
	hasher      PasswordHasher
	limiter     ratelimit.Limiter
	logger      *slog.Logger
	metrics     *instrumentation.Metrics
	tracer      trace.Tracer
}

// NewService creates a Service from config.
func NewService(config Config) (*Service, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	cfg := config.withDefaults()

	signer, err := token.NewSigner(cfg.Secret)
	if err != nil {
		return nil, err
	}

	return &Service{
		issuer:      token.NewIssuer(signer, cfg.TokenTTL),
		signer:      signer,
		tokens:      cfg.TokenStore,
		identities:  cfg.Identities,
		provisioner: cfg.Provisioner,
		hasher:      cfg.Hasher,
		limiter:     cfg.Limiter,
		logger:      cfg.Logger,
		metrics:     cfg.Instrumentation.Metrics(),
		tracer:      cfg.Instrumentation.Tracer("auth"),
	}, nil
}

// Authenticate checks an identifier/secret pair against the identity
// store. When no identity matches, a hash is still computed so the
// response time does not reveal whether the identifier exists. An
// identity that fails the secret check and an identifier that matches
// nothing produce the same error.
func (s *Service) Authenticate(ctx context.Context, identifier, secret string) (*Identity, error) {
	ctx, span := s.tracer.Start(ctx, "authcore.Authenticate")
	defer span.End()

	identity, err := s.identities.FindByLoginIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			if _, herr := s.hasher.Hash(secret); herr != nil {
				s.logger.WarnContext(ctx, "timing-equalization hash failed", "error", herr)
			}
			return nil, failWith(ErrInvalidCredentials, err)
		}
		return nil, failWith(ErrStoreUnavailable, err)
	}
	if !s.hasher.Verify(secret, identity.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !identity.Active {
		return nil, ErrInactiveIdentity
	}
	return identity, nil
}

// Login authenticates the identifier/secret pair and, on success,
// establishes a session for the identity.
func (s *Service) Login(ctx context.Context, identifier, secret string) (*TokenPair, *Identity, error) {
	identity, err := s.Authenticate(ctx, identifier, secret)
	if err != nil {
		return nil, nil, err
	}
	pair, err := s.IssueTokenPair(ctx, identity.ID)
	if err != nil {
		return nil, nil, err
	}
	return pair, identity, nil
}

// IssueTokenPair mints an access/refresh token pair for the identity.
// The refresh token is recorded durably before the pair is returned; if
// the record cannot be written, no tokens are handed out.
func (s *Service) IssueTokenPair(ctx context.Context, userID int64) (*TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "authcore.IssueTokenPair",
		trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	access, err := s.issuer.IssueAccess(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issuer.IssueRefresh(userID)
	if err != nil {
		return nil, err
	}

	err = s.tokens.Record(ctx, &storage.OutstandingToken{
		UserID:    userID,
		TokenID:   refresh.TokenID,
		Token:     refresh.Token,
		CreatedAt: refresh.IssuedAt,
		ExpiresAt: refresh.ExpiresAt,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record refresh token",
			"user_id", userID, "error", err)
		return nil, storeError(err)
	}

	s.metrics.TokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("audience", string(token.AudienceAccess))))
	s.metrics.TokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("audience", string(token.AudienceRefresh))))
	s.logger.InfoContext(ctx, "session established", "user_id", userID)

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh.Token,
		TokenType:    "Bearer",
	}, nil
}

// Refresh mints a new access token from a refresh token. The refresh
// token must verify cryptographically and must not be revoked; when the
// revocation store cannot be reached the refresh is denied rather than
// allowed through. A revoked token reports the same failure as an
// expired one, so a caller probing with a stolen token learns nothing
// beyond "re-authenticate".
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "authcore.Refresh")
	defer span.End()

	userID, tokenID, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		s.countVerificationFailure(ctx, token.AudienceRefresh, err)
		return "", tokenError(err)
	}

	revoked, err := s.tokens.IsRevoked(ctx, tokenID)
	if err != nil {
		s.logger.ErrorContext(ctx, "revocation check failed", "error", err)
		return "", failWith(ErrStoreUnavailable, err)
	}
	if revoked {
		s.countVerificationFailure(ctx, token.AudienceRefresh, token.ErrExpiredToken)
		return "", failWith(ErrExpiredToken, errors.New("refresh token revoked"))
	}

	access, err := s.issuer.IssueAccess(userID)
	if err != nil {
		return "", err
	}

	s.metrics.TokensRefreshed.Add(ctx, 1)
	return access, nil
}

// RevokeSession blacklists the session a refresh token belongs to. The
// token only needs a valid signature; an expired token still identifies
// its session and is revoked normally. Tokens that fail the signature
// check, or that carry no token ID, are ignored: revoking garbage is a
// no-op, matching the idempotent logout contract.
func (s *Service) RevokeSession(ctx context.Context, refreshToken string) error {
	ctx, span := s.tracer.Start(ctx, "authcore.RevokeSession")
	defer span.End()

	claims, err := s.signer.Decode(refreshToken)
	if err != nil || claims.ID == "" {
		return nil
	}
	if err := s.tokens.Revoke(ctx, claims.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke session", "error", err)
		return storeError(err)
	}
	s.metrics.SessionsRevoked.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", "single")))
	return nil
}

// RevokeAllSessions blacklists every outstanding refresh token recorded
// for the identity.
func (s *Service) RevokeAllSessions(ctx context.Context, userID int64) error {
	ctx, span := s.tracer.Start(ctx, "authcore.RevokeAllSessions",
		trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	if err := s.tokens.RevokeAll(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke sessions",
			"user_id", userID, "error", err)
		return storeError(err)
	}
	s.metrics.SessionsRevoked.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", "all")))
	s.logger.InfoContext(ctx, "all sessions revoked", "user_id", userID)
	return nil
}

// VerifyAccessToken verifies an access token and returns the identity ID
// it was minted for. Verification is stateless; revocation applies only
// to refresh tokens.
func (s *Service) VerifyAccessToken(ctx context.Context, accessToken string) (int64, error) {
	userID, err := s.issuer.VerifyAccess(accessToken)
	if err != nil {
		s.countVerificationFailure(ctx, token.AudienceAccess, err)
		return 0, tokenError(err)
	}
	return userID, nil
}

// CurrentIdentity verifies an access token and loads the identity it
// belongs to. An identity deactivated after the token was minted is
// rejected even though the token itself still verifies.
func (s *Service) CurrentIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	userID, err := s.VerifyAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	identity, err := s.identities.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, failWith(ErrInvalidToken, err)
		}
		return nil, failWith(ErrStoreUnavailable, err)
	}
	if !identity.Active {
		return nil, ErrInactiveIdentity
	}
	return identity, nil
}

// IssuePasswordResetToken mints a password-reset token for the identity.
func (s *Service) IssuePasswordResetToken(ctx context.Context, userID int64) (string, error) {
	reset, err := s.issuer.IssuePasswordReset(userID)
	if err != nil {
		return "", err
	}
	s.metrics.TokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("audience", string(token.AudiencePasswordReset))))
	return reset, nil
}

// VerifyPasswordResetToken verifies a password-reset token and returns
// the identity ID allowed to set a new secret.
func (s *Service) VerifyPasswordResetToken(ctx context.Context, resetToken string) (int64, error) {
	userID, err := s.issuer.VerifyPasswordReset(resetToken)
	if err != nil {
		s.countVerificationFailure(ctx, token.AudiencePasswordReset, err)
		return 0, tokenError(err)
	}
	return userID, nil
}

// IssueEmailVerificationToken mints a token proving control of the
// address once presented back.
func (s *Service) IssueEmailVerificationToken(ctx context.Context, email string) (string, error) {
	verification, err := s.issuer.IssueEmailVerification(email)
	if err != nil {
		return "", err
	}
	s.metrics.TokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("audience", string(token.AudienceEmailVerification))))
	return verification, nil
}

// VerifyEmailVerificationToken verifies an email-verification token and
// returns the address it was minted for.
func (s *Service) VerifyEmailVerificationToken(ctx context.Context, verificationToken string) (string, error) {
	email, err := s.issuer.VerifyEmailVerification(verificationToken)
	if err != nil {
		s.countVerificationFailure(ctx, token.AudienceEmailVerification, err)
		return "", tokenError(err)
	}
	return email, nil
}

// CheckRateLimit asks the configured limiter whether the client may
// perform the operation now. A denial carries the time until the current
// window expires. With no limiter configured every request is admitted.
func (s *Service) CheckRateLimit(ctx context.Context, clientID, method, path string) error {
	if s.limiter == nil {
		return nil
	}
	key := ratelimit.Key{ClientID: clientID, Method: method, Path: path}
	retryAfter, err := s.limiter.Check(ctx, key)
	if err != nil {
		s.logger.ErrorContext(ctx, "rate limiter unavailable", "error", err)
		return failWith(ErrStoreUnavailable, err)
	}
	if retryAfter > 0 {
		s.metrics.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
			attribute.String("path", key.Path)))
		return rateLimited(retryAfter)
	}
	return nil
}

func (s *Service) countVerificationFailure(ctx context.Context, aud token.Audience, err error) {
	reason := "invalid"
	if errors.Is(err, token.ErrExpiredToken) {
		reason = "expired"
	}
	s.metrics.TokenVerificationFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("audience", string(aud)),
		attribute.String("reason", reason)))
}
