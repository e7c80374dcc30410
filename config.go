package authcore

import (
	"errors"
	"log/slog"

	"github.com/keystonehq/authcore/instrumentation"
	"github.com/keystonehq/authcore/ratelimit"
	"github.com/keystonehq/authcore/security"
	"github.com/keystonehq/authcore/storage"
	"github.com/keystonehq/authcore/token"
)

// Config assembles a Service. Secret, Identities, and TokenStore are
// required; everything else has a working default.
type Config struct {
	// Secret is the process-wide HMAC-SHA256 signing secret. Every token
	// audience is signed with it.
	Secret []byte

	// TokenTTL pins per-audience validity periods. Zero fields use the
	// token package defaults.
	TokenTTL token.TTLConfig

	// Identities supplies accounts for credential checks.
	Identities IdentityStore

	// Provisioner resolves or creates identities for provider logins.
	// Optional; LoginWithProvider fails without it.
	Provisioner IdentityProvisioner

	// Hasher verifies and creates password hashes. Defaults to bcrypt at
	// the library default cost.
	Hasher PasswordHasher

	// TokenStore records outstanding refresh tokens and their
	// revocations.
	TokenStore storage.TokenStore

	// Limiter throttles sensitive operations. Optional; with no limiter
	// CheckRateLimit always admits.
	Limiter ratelimit.Limiter

	// Logger receives structured logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Instrumentation supplies metrics and tracing. Defaults to no-op
	// providers.
	Instrumentation *instrumentation.Instrumentation
}

func (c *Config) validate() error {
	if len(c.Secret) == 0 {
		return errors.New("signing secret is required")
	}
	if c.Identities == nil {
		return errors.New("identity store is required")
	}
	if c.TokenStore == nil {
		return errors.New("token store is required")
	}
	return nil
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.Hasher == nil {
		out.Hasher = security.NewBcryptHasher(0)
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.Instrumentation == nil {
		out.Instrumentation = instrumentation.Noop()
	}
	return &out
}
