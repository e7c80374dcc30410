// Package valkey implements the distributed rate limiter on a
// Valkey/Redis-compatible store. The check-and-increment runs as a single
// Lua script, so concurrent requests against the same key from any
// service instance cannot jointly exceed the limit.
package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/keystonehq/authcore/ratelimit"
)

// connectionVerifyTimeout bounds the initial PING.
const connectionVerifyTimeout = 5 * time.Second

// checkScript creates the counter with value 1 and a window-length TTL on
// first hit, returns the remaining TTL (ms) without incrementing when the
// limit would be exceeded, and increments otherwise. Zero means allow.
const checkScript = `local key = KEYS[1]
local limit = tonumber(ARGV[1])
local expire_time = ARGV[2]
local current = tonumber(redis.call('get', key) or "0")
if current > 0 then
  if current + 1 > limit then
    return redis.call("PTTL",key)
  else
    redis.call("INCR", key)
    return 0
  end
else
  redis.call("SET", key, 1,"px",expire_time)
  return 0
end`

// Config holds the connection settings for the shared counter store.
type Config struct {
	// Address is the server address, e.g. "localhost:6379" (required).
	Address string

	// Password is the optional authentication password.
	Password string

	// DB is the optional database number.
	DB int

	// KeyPrefix is prepended to every counter key.
	KeyPrefix string

	// TLS is the optional TLS configuration.
	TLS *tls.Config

	// Logger is the optional structured logger.
	Logger *slog.Logger
}

// Limiter is a Valkey-backed fixed-window ratelimit.Limiter.
type Limiter struct {
	client valkeygo.Client
	script *valkeygo.Lua
	limit  ratelimit.Limit
	prefix string
	logger *slog.Logger
}

var _ ratelimit.Limiter = (*Limiter)(nil)

// New connects to the store and creates a limiter enforcing limit.
func New(cfg Config, limit ratelimit.Limit) (*Limiter, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}
	if limit.Times <= 0 || limit.Window <= 0 {
		return nil, fmt.Errorf("limit times and window must be positive")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ratelimit.ErrUnavailable, err)
	}

	logger.Info("connected to rate limit store", "address", cfg.Address, "db", cfg.DB)

	return &Limiter{
		client: client,
		script: valkeygo.NewLuaScript(checkScript),
		limit:  limit,
		prefix: cfg.KeyPrefix,
		logger: logger,
	}, nil
}

// Check runs the atomic check-and-increment for the key.
func (l *Limiter) Check(ctx context.Context, key ratelimit.Key) (time.Duration, error) {
	pttl, err := l.script.Exec(ctx, l.client,
		[]string{l.prefix + key.String()},
		[]string{
			strconv.Itoa(l.limit.Times),
			strconv.FormatInt(l.limit.Window.Milliseconds(), 10),
		},
	).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ratelimit.ErrUnavailable, err)
	}
	if pttl <= 0 {
		return 0, nil
	}

	l.logger.Debug("rate limit exceeded",
		"client_id", key.ClientID,
		"method", key.Method,
		"path", key.Path,
		"retry_after_ms", pttl)
	return time.Duration(pttl) * time.Millisecond, nil
}

// Close releases the client connection.
func (l *Limiter) Close() {
	l.client.Close()
}
