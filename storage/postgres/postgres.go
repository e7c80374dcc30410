// Package postgres implements the durable token store on PostgreSQL.
//
// Outstanding tokens live in outstanding_tokens (unique jti); revocation
// markers live in blacklisted_tokens with a unique reference to the
// outstanding row, so the schema itself enforces the one-marker-per-token
// and append-only invariants. Blacklist writes are INSERT ... SELECT ...
// ON CONFLICT DO NOTHING, which makes Revoke and RevokeAll idempotent and
// race-free without a read-modify-write cycle. Revocation state is never
// cached: every IsRevoked call hits the database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/keystonehq/authcore/internal/dbx"
	"github.com/keystonehq/authcore/storage"
	"github.com/keystonehq/authcore/storage/postgres/migrations"
)

// pgUniqueViolation is the PostgreSQL error code for unique_violation.
const pgUniqueViolation = "23505"

// Store is a PostgreSQL-backed storage.TokenStore over a dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type Store struct {
	db dbx.DBTX
}

// New constructs a Store bound to the given DBTX.
func New(db dbx.DBTX) *Store {
	return &Store{db: db}
}

// Open connects via the pgx stdlib driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	}
	return db, nil
}

// Migrate runs the embedded goose migrations against db.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// Record inserts the outstanding-token row. A jti collision surfaces as
// storage.ErrDuplicateTokenID.
func (s *Store) Record(ctx context.Context, t *storage.OutstandingToken) error {
	query := `
		INSERT INTO outstanding_tokens (user_id, jti, token, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.db.ExecContext(ctx, query,
		t.UserID, t.TokenID, t.Token, t.CreatedAt, t.ExpiresAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return storage.ErrDuplicateTokenID
		}
		return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether a blacklist marker exists for the jti.
func (s *Store) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM blacklisted_tokens b
			JOIN outstanding_tokens o ON o.id = b.token_id
			WHERE o.jti = $1
		)
	`
	var revoked bool
	if err := s.db.QueryRowContext(ctx, query, tokenID).Scan(&revoked); err != nil {
		return false, fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	}
	return revoked, nil
}

// Revoke blacklists one jti. Unknown or already-revoked IDs are a no-op.
func (s *Store) Revoke(ctx context.Context, tokenID string) error {
	query := `
		INSERT INTO blacklisted_tokens (token_id, blacklisted_at)
		SELECT id, $2 FROM outstanding_tokens WHERE jti = $1
		ON CONFLICT (token_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, tokenID, time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	}
	return nil
}

// RevokeAll blacklists every outstanding token of the identity.
func (s *Store) RevokeAll(ctx context.Context, userID int64) error {
	query := `
		INSERT INTO blacklisted_tokens (token_id, blacklisted_at)
		SELECT id, $2 FROM outstanding_tokens WHERE user_id = $1
		ON CONFLICT (token_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	}
	return nil
}
