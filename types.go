package authcore

import "context"

// Identity is the account view the core operates on. The core never
// persists identities itself; an IdentityStore supplies them and the
// core only reads the fields it needs for credential and session
// decisions.
type Identity struct {
	ID           int64
	Email        string
	PasswordHash string
	Active       bool
}

// TokenPair is the result of establishing a session: a short-lived
// access token and a long-lived, individually revocable refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
}

// IdentityStore looks up identities for credential and session checks.
// Both lookups return ErrIdentityNotFound when no identity matches; any
// other error is treated as store unavailability.
type IdentityStore interface {
	FindByLoginIdentifier(ctx context.Context, identifier string) (*Identity, error)
	FindByID(ctx context.Context, id int64) (*Identity, error)
}

// IdentityProvisioner resolves or creates an identity for a
// provider-asserted email address. placeholderHash is the password hash
// to store when a new identity is created; existing identities keep
// their hash. created reports whether a new identity was made.
type IdentityProvisioner interface {
	GetOrCreateByEmail(ctx context.Context, email, placeholderHash string) (identity *Identity, created bool, err error)
}

// PasswordHasher abstracts the password hashing scheme so the core
// never touches hash internals.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, hash string) bool
}
