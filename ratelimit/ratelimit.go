// Package ratelimit defines the fixed-window request-rate limiter
// consulted on the request path. Counters are keyed by client identity
// plus route and reset at a fixed boundary relative to the first request
// in the window, so bursts straddling a boundary can admit up to ~2x the
// nominal rate; that is a documented property of the scheme, not a bug.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable indicates the shared counter store could not be reached.
var ErrUnavailable = errors.New("rate limit store unavailable")

// Key identifies one counter: a client identity hitting one route.
type Key struct {
	ClientID string
	Method   string
	Path     string
}

// String renders the storage key.
func (k Key) String() string {
	return fmt.Sprintf("limiter:%s:%s:%s", k.ClientID, k.Method, k.Path)
}

// Limit configures a limiter: at most Times requests per Window.
type Limit struct {
	Times  int
	Window time.Duration
}

// Limiter answers whether a request under the key may proceed.
//
// Check returns 0 to allow. A positive duration denies the request and
// reports the remaining window as the retry-after hint; the counter is
// not incremented on denial. The check-and-increment is atomic under
// concurrent access to the same key.
type Limiter interface {
	Check(ctx context.Context, key Key) (retryAfter time.Duration, err error)
}
