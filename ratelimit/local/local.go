// Package local implements the rate limiter in process memory for tests
// and single-instance deployments. It enforces the same fixed-window
// admission semantics as the distributed limiter but shares nothing
// across instances.
package local

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/keystonehq/authcore/ratelimit"
)

// defaultCleanupInterval is how often stale windows are dropped.
const defaultCleanupInterval = time.Minute

type window struct {
	count   int
	expires time.Time
}

// Limiter is an in-process fixed-window ratelimit.Limiter.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   ratelimit.Limit
	logger  *slog.Logger

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

var _ ratelimit.Limiter = (*Limiter)(nil)

// New creates a limiter enforcing limit. Stale windows are cleaned up in
// the background until Close is called.
func New(limit ratelimit.Limit, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Limiter{
		windows:     make(map[string]*window),
		limit:       limit,
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Check applies the fixed-window admission rule for the key.
func (l *Limiter) Check(_ context.Context, key ratelimit.Key) (time.Duration, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key.String()]
	if !ok || !w.expires.After(now) {
		l.windows[key.String()] = &window{count: 1, expires: now.Add(l.limit.Window)}
		return 0, nil
	}
	if w.count+1 > l.limit.Times {
		retryAfter := w.expires.Sub(now)
		l.logger.Debug("rate limit exceeded",
			"client_id", key.ClientID,
			"method", key.Method,
			"path", key.Path,
			"retry_after_ms", retryAfter.Milliseconds())
		return retryAfter, nil
	}
	w.count++
	return 0, nil
}

// Close stops the background cleanup goroutine.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

func (l *Limiter) cleanup() {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		if !w.expires.After(now) {
			delete(l.windows, key)
			removed++
		}
	}
	if removed > 0 {
		l.logger.Debug("cleaned up expired rate limit windows", "removed", removed)
	}
}
