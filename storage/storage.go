// Package storage defines the durable record of issued refresh tokens.
// Every refresh token the core hands out is recorded as outstanding; a
// revocation appends a blacklist marker for its token ID. The blacklist
// is consulted on every refresh, so implementations must not cache
// revocation state in memory: a revoke must be visible to the next
// IsRevoked call from any service instance.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateTokenID indicates an attempt to record a second
	// outstanding token with the same token ID. With random IDs this is
	// cryptographically near-impossible and usually means a caller
	// re-issued instead of retrying with the ID it already generated.
	ErrDuplicateTokenID = errors.New("token id already recorded")

	// ErrUnavailable indicates the backing store could not be reached.
	// Callers on the refresh path must fail closed: unavailable is never
	// the same answer as "not revoked".
	ErrUnavailable = errors.New("token store unavailable")
)

// OutstandingToken is the persisted record of one issued refresh token.
// Rows are immutable once written; only identity deletion cascades here.
type OutstandingToken struct {
	ID        int64
	UserID    int64
	TokenID   string
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// TokenStore records outstanding refresh tokens and answers revocation
// queries. All operations are durable and survive process restart.
type TokenStore interface {
	// Record persists the outstanding-token row for a freshly issued
	// refresh token. It is called exactly once per issuance and fails
	// with ErrDuplicateTokenID on a token ID collision.
	Record(ctx context.Context, t *OutstandingToken) error

	// IsRevoked reports whether a blacklist marker exists for the token ID.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// Revoke appends a blacklist marker for the token ID. It is
	// idempotent; revoking an already-revoked or unknown token ID is a
	// no-op, not an error.
	Revoke(ctx context.Context, tokenID string) error

	// RevokeAll blacklists every outstanding token recorded for the
	// identity. Tokens issued to other identities are untouched.
	RevokeAll(ctx context.Context, userID int64) error
}
