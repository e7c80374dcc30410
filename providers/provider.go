// Package providers implements the generic OAuth2 authorization-code
// client protocol and defines the interface concrete identity providers
// satisfy. The generic Client supplies authorize-URL construction, code
// exchange, token refresh, and token revocation from declared endpoint
// configuration; a concrete provider only has to implement identity
// resolution on top of it.
package providers

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
)

// Per-operation failure kinds. Provider HTTP failures surface
// immediately and are never retried inside the client; retry policy, if
// any, belongs to the caller.
var (
	// ErrRefreshNotSupported indicates the provider declares no refresh
	// endpoint.
	ErrRefreshNotSupported = errors.New("provider does not support token refresh")

	// ErrRevokeNotSupported indicates the provider declares no
	// revocation endpoint.
	ErrRevokeNotSupported = errors.New("provider does not support token revocation")

	// ErrExchangeFailed indicates the code-for-token exchange was
	// rejected by the provider.
	ErrExchangeFailed = errors.New("failed to exchange authorization code")

	// ErrRefreshFailed indicates the provider rejected a refresh request.
	ErrRefreshFailed = errors.New("failed to refresh provider token")

	// ErrRevokeFailed indicates the provider rejected a revocation request.
	ErrRevokeFailed = errors.New("failed to revoke provider token")

	// ErrIdentityLookupFailed indicates the provider rejected the
	// identity lookup for an access token.
	ErrIdentityLookupFailed = errors.New("failed to resolve provider identity")
)

// Identity is the minimal identity a provider resolves for an access
// token: the provider-scoped user ID and the account email.
type Identity struct {
	ProviderUserID string
	Email          string
}

// Provider is the capability set of one OAuth2 identity provider.
// The generic Client implements everything except ResolveIdentity, which
// is the only provider-specific method.
type Provider interface {
	// Name returns the provider name, e.g. "google".
	Name() string

	// AuthorizationURL constructs the provider authorize URL for the
	// given state and scopes. Pure and deterministic; nil scopes use the
	// provider's configured defaults.
	AuthorizationURL(state string, scopes []string) string

	// ExchangeCode exchanges an authorization code for a provider token.
	// codeVerifier is included only when non-empty (PKCE).
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error)

	// RefreshToken obtains a fresh provider token. Fails with
	// ErrRefreshNotSupported when the provider has no refresh endpoint.
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// RevokeToken revokes a token at the provider. tokenTypeHint is
	// included only when non-empty.
	RevokeToken(ctx context.Context, token, tokenTypeHint string) error

	// ResolveIdentity resolves the provider user ID and email for an
	// access token.
	ResolveIdentity(ctx context.Context, accessToken string) (*Identity, error)
}
