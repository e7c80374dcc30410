package authcore

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/keystonehq/authcore/providers"
	"github.com/keystonehq/authcore/security"
)

// ProviderLogin is the outcome of a completed authorization-code
// callback: the identity the provider asserted, the anti-CSRF nonce
// recovered from the state token, and the provider token set.
type ProviderLogin struct {
	Identity *providers.Identity
	Nonce    string
	Token    *oauth2.Token
}

// ProviderAuthorizationURL builds the URL to send a client to for the
// given provider. The caller-supplied nonce is wrapped in a signed,
// short-lived state token so the callback can be tied back to the
// session that initiated it.
func (s *Service) ProviderAuthorizationURL(p providers.Provider, nonce string, scopes []string) (string, error) {
	state, err := s.issuer.IssueOAuth2State(nonce)
	if err != nil {
		return "", err
	}
	return p.AuthorizationURL(state, scopes), nil
}

// CompleteProviderLogin handles an authorization-code callback: it
// exchanges the code, resolves the identity behind the returned access
// token, and verifies the state token, in that order. The state check
// runs last so its failure modes are indistinguishable from a callback
// that never reached the provider.
func (s *Service) CompleteProviderLogin(ctx context.Context, p providers.Provider, code, state, codeVerifier string) (*ProviderLogin, error) {
	ctx, span := s.tracer.Start(ctx, "authcore.CompleteProviderLogin",
		trace.WithAttributes(attribute.String("provider", p.Name())))
	defer span.End()

	tok, err := providerCall(ctx, s, p.Name(), "exchange_code", func() (*oauth2.Token, error) {
		return p.ExchangeCode(ctx, code, codeVerifier)
	})
	if err != nil {
		return nil, providerError(err)
	}

	identity, err := providerCall(ctx, s, p.Name(), "resolve_identity", func() (*providers.Identity, error) {
		return p.ResolveIdentity(ctx, tok.AccessToken)
	})
	if err != nil {
		return nil, providerError(err)
	}

	nonce, err := s.issuer.VerifyOAuth2State(state)
	if err != nil {
		s.logger.WarnContext(ctx, "oauth2 state rejected",
			"provider", p.Name(), "error", err)
		return nil, tokenError(err)
	}

	return &ProviderLogin{Identity: identity, Nonce: nonce, Token: tok}, nil
}

// LoginWithProvider completes the callback, resolves or creates a local
// identity for the provider-asserted email, and establishes a session
// for it. Newly created identities receive a hashed random placeholder
// secret, so they have no password login until one is explicitly set.
func (s *Service) LoginWithProvider(ctx context.Context, p providers.Provider, code, state, codeVerifier string) (*TokenPair, *Identity, error) {
	if s.provisioner == nil {
		return nil, nil, errors.New("identity provisioner is required for provider login")
	}

	login, err := s.CompleteProviderLogin(ctx, p, code, state, codeVerifier)
	if err != nil {
		return nil, nil, err
	}

	placeholder, err := s.hasher.Hash(security.PlaceholderSecret())
	if err != nil {
		return nil, nil, err
	}
	identity, created, err := s.provisioner.GetOrCreateByEmail(ctx, login.Identity.Email, placeholder)
	if err != nil {
		return nil, nil, failWith(ErrStoreUnavailable, err)
	}
	if created {
		s.logger.InfoContext(ctx, "identity provisioned from provider",
			"provider", p.Name(), "user_id", identity.ID)
	}
	if !identity.Active {
		return nil, nil, ErrInactiveIdentity
	}

	pair, err := s.IssueTokenPair(ctx, identity.ID)
	if err != nil {
		return nil, nil, err
	}
	return pair, identity, nil
}

// providerCall wraps one provider API call with call/error counters.
func providerCall[T any](ctx context.Context, s *Service, name, operation string, call func() (T, error)) (T, error) {
	attrs := metric.WithAttributes(
		attribute.String("provider", name),
		attribute.String("operation", operation))
	s.metrics.ProviderAPICallsTotal.Add(ctx, 1, attrs)
	out, err := call()
	if err != nil {
		s.metrics.ProviderAPIErrors.Add(ctx, 1, attrs)
		s.logger.ErrorContext(ctx, "provider call failed",
			"provider", name, "operation", operation, "error", err)
	}
	return out, err
}
