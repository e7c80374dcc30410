// Package dbx provides the tiny DB abstraction shared by SQL-backed
// stores: a minimal interface (DBTX) implemented by both *sql.DB and
// *sql.Tx, so store code and tests can run against either.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql used by the stores.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
