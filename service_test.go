package authcore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keystonehq/authcore/ratelimit"
	"github.com/keystonehq/authcore/storage"
	"github.com/keystonehq/authcore/storage/memory"
	"github.com/keystonehq/authcore/token"
)

// fakeIdentityStore serves identities keyed by login identifier.
type fakeIdentityStore struct {
	identities map[string]*Identity
	err        error
}

func (f *fakeIdentityStore) FindByLoginIdentifier(_ context.Context, identifier string) (*Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	identity, ok := f.identities[identifier]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	out := *identity
	return &out, nil
}

func (f *fakeIdentityStore) FindByID(_ context.Context, id int64) (*Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, identity := range f.identities {
		if identity.ID == id {
			out := *identity
			return &out, nil
		}
	}
	return nil, ErrIdentityNotFound
}

// fakeHasher is a transparent hasher that counts Hash calls, so tests
// can observe the timing-equalization hash on unknown identifiers.
type fakeHasher struct {
	hashCalls int
}

func (f *fakeHasher) Hash(secret string) (string, error) {
	f.hashCalls++
	return "hashed:" + secret, nil
}

func (f *fakeHasher) Verify(secret, hash string) bool {
	return hash == "hashed:"+secret
}

// failingTokenStore injects failures in front of a real in-memory store.
type failingTokenStore struct {
	storage.TokenStore
	recordErr  error
	revokedErr error
}

func (f *failingTokenStore) Record(ctx context.Context, t *storage.OutstandingToken) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	return f.TokenStore.Record(ctx, t)
}

func (f *failingTokenStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if f.revokedErr != nil {
		return false, f.revokedErr
	}
	return f.TokenStore.IsRevoked(ctx, tokenID)
}

type fakeLimiter struct {
	retryAfter time.Duration
	err        error
}

func (f *fakeLimiter) Check(context.Context, ratelimit.Key) (time.Duration, error) {
	return f.retryAfter, f.err
}

type serviceFixture struct {
	service    *Service
	identities *fakeIdentityStore
	hasher     *fakeHasher
	store      *memory.Store
}

func newFixture(t *testing.T, mutate func(*Config)) *serviceFixture {
	t.Helper()

	hasher := &fakeHasher{}
	identities := &fakeIdentityStore{identities: map[string]*Identity{
		"ada@example.com": {ID: 1, Email: "ada@example.com", PasswordHash: "hashed:s3cret", Active: true},
		"off@example.com": {ID: 2, Email: "off@example.com", PasswordHash: "hashed:s3cret", Active: false},
	}}
	store := memory.New(nil)

	cfg := Config{
		Secret:     []byte("test-secret"),
		Identities: identities,
		TokenStore: store,
		Hasher:     hasher,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	service, err := NewService(cfg)
	require.NoError(t, err)
	return &serviceFixture{service: service, identities: identities, hasher: hasher, store: store}
}

func TestNewService_Validation(t *testing.T) {
	base := func() Config {
		return Config{
			Secret:     []byte("s"),
			Identities: &fakeIdentityStore{},
			TokenStore: memory.New(nil),
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing secret", func(c *Config) { c.Secret = nil }},
		{"missing identity store", func(c *Config) { c.Identities = nil }},
		{"missing token store", func(c *Config) { c.TokenStore = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			_, err := NewService(cfg)
			assert.Error(t, err)
		})
	}

	_, err := NewService(base())
	assert.NoError(t, err)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	identity, err := f.service.Authenticate(ctx, "ada@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, int64(1), identity.ID)

	_, err = f.service.Authenticate(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.service.Authenticate(ctx, "off@example.com", "s3cret")
	assert.ErrorIs(t, err, ErrInactiveIdentity)
}

func TestAuthenticate_UnknownIdentifierBurnsHash(t *testing.T) {
	f := newFixture(t, nil)

	before := f.hasher.hashCalls
	_, err := f.service.Authenticate(context.Background(), "nobody@example.com", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, before+1, f.hasher.hashCalls,
		"unknown identifier must still cost one hash computation")
}

func TestAuthenticate_StoreFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.identities.err = errors.New("connection refused")

	_, err := f.service.Authenticate(context.Background(), "ada@example.com", "s3cret")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	pair, identity, err := f.service.Login(ctx, "ada@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(1), identity.ID)

	userID, err := f.service.VerifyAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(1), userID)

	access, err := f.service.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, access)
}

func TestIssueTokenPair_RecordFailureWithholdsTokens(t *testing.T) {
	failing := &failingTokenStore{
		TokenStore: memory.New(nil),
		recordErr:  fmt.Errorf("%w: connection refused", storage.ErrUnavailable),
	}
	f := newFixture(t, func(c *Config) { c.TokenStore = failing })

	pair, err := f.service.IssueTokenPair(context.Background(), 1)
	assert.Nil(t, pair)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestIssueTokenPair_DuplicateTokenID(t *testing.T) {
	failing := &failingTokenStore{
		TokenStore: memory.New(nil),
		recordErr:  storage.ErrDuplicateTokenID,
	}
	f := newFixture(t, func(c *Config) { c.TokenStore = failing })

	_, err := f.service.IssueTokenPair(context.Background(), 1)
	assert.ErrorIs(t, err, ErrDuplicateTokenID)
}

func TestRefresh_InvalidToken(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.service.Refresh(context.Background(), "not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.NotErrorIs(t, err, ErrExpiredToken)
}

func TestRefresh_RevokedReportsExpired(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	pair, _, err := f.service.Login(ctx, "ada@example.com", "s3cret")
	require.NoError(t, err)
	require.NoError(t, f.service.RevokeSession(ctx, pair.RefreshToken))

	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_StoreUnavailableFailsClosed(t *testing.T) {
	failing := &failingTokenStore{TokenStore: memory.New(nil)}
	f := newFixture(t, func(c *Config) { c.TokenStore = failing })
	ctx := context.Background()

	pair, _, err := f.service.Login(ctx, "ada@example.com", "s3cret")
	require.NoError(t, err)

	failing.revokedErr = fmt.Errorf("%w: connection refused", storage.ErrUnavailable)
	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestRevokeSession_GarbageIsNoOp(t *testing.T) {
	f := newFixture(t, nil)

	assert.NoError(t, f.service.RevokeSession(context.Background(), "garbage"))
	assert.Equal(t, 0, f.store.BlacklistSize())
}

func TestRevokeSession_ExpiredTokenStillRevokes(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.TokenTTL = token.TTLConfig{Refresh: time.Nanosecond}
	})
	ctx := context.Background()

	pair, _, err := f.service.Login(ctx, "ada@example.com", "s3cret")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrExpiredToken)

	require.NoError(t, f.service.RevokeSession(ctx, pair.RefreshToken))
	assert.Equal(t, 1, f.store.BlacklistSize())
}

func TestRevokeAllSessions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.service.IssueTokenPair(ctx, 1)
	require.NoError(t, err)
	second, err := f.service.IssueTokenPair(ctx, 1)
	require.NoError(t, err)
	other, err := f.service.IssueTokenPair(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, f.service.RevokeAllSessions(ctx, 1))

	_, err = f.service.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
	_, err = f.service.Refresh(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
	_, err = f.service.Refresh(ctx, other.RefreshToken)
	assert.NoError(t, err, "other identity's session must survive")
}

func TestVerifyAccessToken_RejectsOtherAudiences(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	pair, err := f.service.IssueTokenPair(ctx, 1)
	require.NoError(t, err)

	_, err = f.service.VerifyAccessToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordResetTokenRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	reset, err := f.service.IssuePasswordResetToken(ctx, 7)
	require.NoError(t, err)

	userID, err := f.service.VerifyPasswordResetToken(ctx, reset)
	require.NoError(t, err)
	assert.Equal(t, int64(7), userID)

	_, err = f.service.VerifyAccessToken(ctx, reset)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestEmailVerificationTokenRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	verification, err := f.service.IssueEmailVerificationToken(ctx, "ada@example.com")
	require.NoError(t, err)

	email, err := f.service.VerifyEmailVerificationToken(ctx, verification)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", email)
}

func TestCurrentIdentity(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	pair, _, err := f.service.Login(ctx, "ada@example.com", "s3cret")
	require.NoError(t, err)

	identity, err := f.service.CurrentIdentity(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", identity.Email)

	// Deactivation after issuance invalidates the session.
	f.identities.identities["ada@example.com"].Active = false
	_, err = f.service.CurrentIdentity(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInactiveIdentity)

	_, err = f.service.CurrentIdentity(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCurrentIdentity_DeletedIdentity(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	pair, _, err := f.service.Login(ctx, "ada@example.com", "s3cret")
	require.NoError(t, err)

	delete(f.identities.identities, "ada@example.com")
	_, err = f.service.CurrentIdentity(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCheckRateLimit(t *testing.T) {
	t.Run("no limiter admits", func(t *testing.T) {
		f := newFixture(t, nil)
		assert.NoError(t, f.service.CheckRateLimit(context.Background(), "10.0.0.1", "POST", "/auth/login"))
	})

	t.Run("denial carries retry-after", func(t *testing.T) {
		f := newFixture(t, func(c *Config) {
			c.Limiter = &fakeLimiter{retryAfter: 1500 * time.Millisecond}
		})
		err := f.service.CheckRateLimit(context.Background(), "10.0.0.1", "POST", "/auth/login")
		require.ErrorIs(t, err, ErrRateLimitExceeded)

		var taxonomyErr *Error
		require.ErrorAs(t, err, &taxonomyErr)
		assert.Equal(t, 1500*time.Millisecond, taxonomyErr.RetryAfter)
		assert.Contains(t, taxonomyErr.Description, "2s")
	})

	t.Run("limiter failure surfaces as unavailable", func(t *testing.T) {
		f := newFixture(t, func(c *Config) {
			c.Limiter = &fakeLimiter{err: ratelimit.ErrUnavailable}
		})
		err := f.service.CheckRateLimit(context.Background(), "10.0.0.1", "POST", "/auth/login")
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})
}
