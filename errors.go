package authcore

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/keystonehq/authcore/providers"
	"github.com/keystonehq/authcore/storage"
	"github.com/keystonehq/authcore/token"
)

// Stable machine-readable failure codes. These cross the boundary to
// callers; internal detail never does.
const (
	CodeInvalidCredentials           = "invalid_credentials"
	CodeInactiveIdentity             = "inactive_identity"
	CodeInvalidToken                 = "invalid_token"
	CodeExpiredToken                 = "expired_token"
	CodeDuplicateTokenID             = "duplicate_token_id"
	CodeUnsupportedProviderOperation = "unsupported_provider_operation"
	CodeProviderExchangeFailed       = "provider_exchange_failed"
	CodeProviderIdentityLookupFailed = "provider_identity_lookup_failed"
	CodeRateLimitExceeded            = "rate_limit_exceeded"
	CodeStoreUnavailable             = "store_unavailable"
)

// Error is the closed failure type exposed by the core: a stable code, a
// human-readable description, and structured fields where a remediation
// hint exists. Two Errors match under errors.Is when their codes match.
type Error struct {
	Code        string
	Description string

	// RetryAfter is set only for rate_limit_exceeded and reports how
	// long until the current window expires.
	RetryAfter time.Duration

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same code, so callers can compare
// against the exported prototypes regardless of wrapped causes.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Failure prototypes, usable as errors.Is targets.
var (
	ErrInvalidCredentials           = &Error{Code: CodeInvalidCredentials, Description: "either identifier or secret is invalid"}
	ErrInactiveIdentity             = &Error{Code: CodeInactiveIdentity, Description: "identity is inactive"}
	ErrInvalidToken                 = &Error{Code: CodeInvalidToken, Description: "token is invalid"}
	ErrExpiredToken                 = &Error{Code: CodeExpiredToken, Description: "token is expired"}
	ErrDuplicateTokenID             = &Error{Code: CodeDuplicateTokenID, Description: "token id already recorded"}
	ErrUnsupportedProviderOperation = &Error{Code: CodeUnsupportedProviderOperation, Description: "operation is not supported by the provider"}
	ErrProviderExchangeFailed       = &Error{Code: CodeProviderExchangeFailed, Description: "error getting access token from provider"}
	ErrProviderIdentityLookupFailed = &Error{Code: CodeProviderIdentityLookupFailed, Description: "error getting id and email information from provider"}
	ErrRateLimitExceeded            = &Error{Code: CodeRateLimitExceeded, Description: "too many requests"}
	ErrStoreUnavailable             = &Error{Code: CodeStoreUnavailable, Description: "backing store unavailable"}
)

// ErrIdentityNotFound is returned by IdentityStore implementations when
// no identity matches. It is a collaborator-contract sentinel, not part
// of the caller-facing taxonomy: the core folds it into
// ErrInvalidCredentials before it crosses the boundary.
var ErrIdentityNotFound = errors.New("identity not found")

// failWith copies a prototype and attaches the cause.
func failWith(proto *Error, cause error) *Error {
	e := *proto
	e.cause = cause
	return &e
}

// rateLimited builds the rate_limit_exceeded failure with the
// retry-after hint. The description carries whole seconds, rounded up,
// matching the Retry-After header the boundary will emit.
func rateLimited(retryAfter time.Duration) *Error {
	e := *ErrRateLimitExceeded
	e.RetryAfter = retryAfter
	e.Description = fmt.Sprintf("too many requests, retry in %ds",
		int64(math.Ceil(retryAfter.Seconds())))
	return &e
}

// tokenError maps a token-package verification failure onto the taxonomy.
func tokenError(err error) *Error {
	if errors.Is(err, token.ErrExpiredToken) {
		return failWith(ErrExpiredToken, err)
	}
	return failWith(ErrInvalidToken, err)
}

// storeError maps a storage failure onto the taxonomy.
func storeError(err error) *Error {
	if errors.Is(err, storage.ErrDuplicateTokenID) {
		return failWith(ErrDuplicateTokenID, err)
	}
	return failWith(ErrStoreUnavailable, err)
}

// providerError maps a provider-protocol failure onto the taxonomy.
func providerError(err error) *Error {
	switch {
	case errors.Is(err, providers.ErrRefreshNotSupported),
		errors.Is(err, providers.ErrRevokeNotSupported):
		return failWith(ErrUnsupportedProviderOperation, err)
	case errors.Is(err, providers.ErrIdentityLookupFailed):
		return failWith(ErrProviderIdentityLookupFailed, err)
	default:
		return failWith(ErrProviderExchangeFailed, err)
	}
}
