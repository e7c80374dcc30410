package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/keystonehq/authcore/storage"
)

func record(userID int64, tokenID string) *storage.OutstandingToken {
	now := time.Now()
	return &storage.OutstandingToken{
		UserID:    userID,
		TokenID:   tokenID,
		Token:     "signed." + tokenID,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestRecordRevokeRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	if err := s.Record(ctx, record(1, "jti-1")); err != nil {
		t.Fatalf("Record: %v", err)
	}

	revoked, err := s.IsRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("IsRevoked after record = (%v, %v), want (false, nil)", revoked, err)
	}

	if err := s.Revoke(ctx, "jti-1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	revoked, err = s.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("IsRevoked after revoke = (%v, %v), want (true, nil)", revoked, err)
	}

	// Second revoke is a no-op, no duplicate marker.
	if err := s.Revoke(ctx, "jti-1"); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	if n := s.BlacklistSize(); n != 1 {
		t.Errorf("blacklist size = %d, want 1", n)
	}
}

func TestRecord_DuplicateTokenID(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	if err := s.Record(ctx, record(1, "jti-dup")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	err := s.Record(ctx, record(2, "jti-dup"))
	if !errors.Is(err, storage.ErrDuplicateTokenID) {
		t.Fatalf("err = %v, want ErrDuplicateTokenID", err)
	}
}

func TestRevoke_UnknownTokenID(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	if err := s.Revoke(ctx, "never-issued"); err != nil {
		t.Fatalf("Revoke of unknown id: %v", err)
	}
	if n := s.BlacklistSize(); n != 0 {
		t.Errorf("blacklist size = %d, want 0", n)
	}
}

func TestRevokeAll_ScopedToUser(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	for i := range 3 {
		if err := s.Record(ctx, record(1, fmt.Sprintf("u1-%d", i))); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := s.Record(ctx, record(2, "u2-0")); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if err := s.RevokeAll(ctx, 1); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}

	for i := range 3 {
		revoked, _ := s.IsRevoked(ctx, fmt.Sprintf("u1-%d", i))
		if !revoked {
			t.Errorf("u1-%d not revoked", i)
		}
	}
	revoked, _ := s.IsRevoked(ctx, "u2-0")
	if revoked {
		t.Error("other user's token was revoked")
	}
}

func TestRevokeAll_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	if err := s.Record(ctx, record(1, "jti-a")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.RevokeAll(ctx, 1); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if err := s.RevokeAll(ctx, 1); err != nil {
		t.Fatalf("second RevokeAll: %v", err)
	}
	if n := s.BlacklistSize(); n != 1 {
		t.Errorf("blacklist size = %d, want 1", n)
	}
}
