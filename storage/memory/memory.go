// Package memory provides an in-memory implementation of the token
// store. It is suitable for tests and single-instance deployments; it
// does not survive process restart and must not be used where revocation
// has to be visible across instances.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/keystonehq/authcore/storage"
)

// Store is a mutex-guarded, map-backed storage.TokenStore.
type Store struct {
	mu          sync.RWMutex
	outstanding map[string]*storage.OutstandingToken // token ID -> record
	byUser      map[int64][]string                   // user ID -> token IDs
	blacklisted map[string]time.Time                 // token ID -> blacklisted at

	nextID int64
	logger *slog.Logger
}

// New creates an empty in-memory store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		outstanding: make(map[string]*storage.OutstandingToken),
		byUser:      make(map[int64][]string),
		blacklisted: make(map[string]time.Time),
		logger:      logger,
	}
}

// Record persists an outstanding-token record.
func (s *Store) Record(_ context.Context, t *storage.OutstandingToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.outstanding[t.TokenID]; exists {
		return storage.ErrDuplicateTokenID
	}

	s.nextID++
	rec := *t
	rec.ID = s.nextID
	s.outstanding[t.TokenID] = &rec
	s.byUser[t.UserID] = append(s.byUser[t.UserID], t.TokenID)

	s.logger.Debug("recorded outstanding token",
		"user_id", t.UserID,
		"token_id", truncateID(t.TokenID))
	return nil
}

// IsRevoked reports whether the token ID has a blacklist marker.
func (s *Store) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, revoked := s.blacklisted[tokenID]
	return revoked, nil
}

// Revoke blacklists one token ID. Unknown IDs are a no-op.
func (s *Store) Revoke(_ context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revokeLocked(tokenID)
	return nil
}

// RevokeAll blacklists every outstanding token of the identity.
func (s *Store) RevokeAll(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tokenID := range s.byUser[userID] {
		s.revokeLocked(tokenID)
	}
	return nil
}

func (s *Store) revokeLocked(tokenID string) {
	if _, exists := s.outstanding[tokenID]; !exists {
		return
	}
	if _, already := s.blacklisted[tokenID]; already {
		return
	}
	s.blacklisted[tokenID] = time.Now()
	s.logger.Debug("blacklisted token", "token_id", truncateID(tokenID))
}

// BlacklistSize returns the number of blacklist markers. Test helper.
func (s *Store) BlacklistSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blacklisted)
}

func truncateID(id string) string {
	const n = 8
	if len(id) <= n {
		return id
	}
	return id[:n]
}
