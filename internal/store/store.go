package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/dukerupert/chorebook/internal/database"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyLogged     = errors.New("occurrence already logged")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, so every store can run
// either standalone or inside a caller's transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a new transaction when q is a *sql.DB, or directly when q
// is already a transaction.
func withTx(ctx context.Context, q DBTX, fn func(q DBTX) error) error {
	db, ok := q.(*sql.DB)
	if !ok {
		return fn(q)
	}
	return database.InTx(ctx, db, func(tx *sql.Tx) error {
		return fn(tx)
	})
}

func parseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
