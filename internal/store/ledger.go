package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/chorebook/internal/model"
)

// LedgerStore appends point entries and maintains the cached balance on
// profiles. It never updates or deletes entries.
type LedgerStore struct {
	db DBTX
}

func NewLedgerStore(db DBTX) *LedgerStore {
	return &LedgerStore{db: db}
}

// WithTx returns a LedgerStore bound to tx.
func (s *LedgerStore) WithTx(tx *sql.Tx) *LedgerStore {
	return &LedgerStore{db: tx}
}

func scanEntry(scanner interface{ Scan(...any) error }) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	var logID sql.NullInt64

	err := scanner.Scan(&e.ID, &e.UserID, &e.FamilyID, &e.Amount, &e.Reason, &logID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if logID.Valid {
		e.OccurrenceLogID = &logID.Int64
	}
	return &e, nil
}

const entryCols = `id, user_id, family_id, amount, reason, occurrence_log_id, created_at`

// Append inserts a ledger entry. Callers must adjust the cached balance in
// the same transaction.
func (s *LedgerStore) Append(ctx context.Context, userID, familyID, amount int64, reason string, occurrenceLogID *int64) (*model.LedgerEntry, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (user_id, family_id, amount, reason, occurrence_log_id) VALUES (?, ?, ?, ?, ?)`,
		userID, familyID, amount, reason, nullInt64(occurrenceLogID),
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+entryCols+` FROM ledger_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return e, nil
}

// AddToBalance increments the cached balance in a single statement.
func (s *LedgerStore) AddToBalance(ctx context.Context, userID, delta int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET points_balance = points_balance + ? WHERE user_id = ?`,
		delta, userID,
	)
	if err != nil {
		return fmt.Errorf("add to balance: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CachedBalance returns the balance stored on the profile.
func (s *LedgerStore) CachedBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT points_balance FROM profiles WHERE user_id = ?`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("cached balance: %w", err)
	}
	return balance, nil
}

// Sum replays the ledger for one user.
func (s *LedgerStore) Sum(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE user_id = ?`,
		userID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum ledger: %w", err)
	}
	return sum, nil
}

// SetCachedBalance overwrites the cached balance with a value derived from the ledger.
func (s *LedgerStore) SetCachedBalance(ctx context.Context, userID, balance int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE profiles SET points_balance = ? WHERE user_id = ?`, balance, userID)
	if err != nil {
		return fmt.Errorf("set cached balance: %w", err)
	}
	return nil
}

// BalanceCheck pairs a profile's cached balance with its ledger sum.
type BalanceCheck struct {
	UserID   int64
	FamilyID int64
	Cached   int64
	Ledger   int64
}

// CheckBalances compares the cache and the ledger for every profile.
func (s *LedgerStore) CheckBalances(ctx context.Context) ([]BalanceCheck, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.user_id, p.family_id, p.points_balance,
		        COALESCE((SELECT SUM(e.amount) FROM ledger_entries e WHERE e.user_id = p.user_id), 0)
		 FROM profiles p ORDER BY p.user_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("check balances: %w", err)
	}
	defer rows.Close()

	var checks []BalanceCheck
	for rows.Next() {
		var c BalanceCheck
		if err := rows.Scan(&c.UserID, &c.FamilyID, &c.Cached, &c.Ledger); err != nil {
			return nil, fmt.Errorf("scan balance check: %w", err)
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

// ListByUser returns a user's entries, newest first. limit <= 0 returns all.
func (s *LedgerStore) ListByUser(ctx context.Context, userID int64, limit int) ([]model.LedgerEntry, error) {
	query := `SELECT ` + entryCols + ` FROM ledger_entries WHERE user_id = ? ORDER BY id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
