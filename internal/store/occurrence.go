package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dukerupert/chorebook/internal/database"
	"github.com/dukerupert/chorebook/internal/model"
)

// OccurrenceStore persists occurrence logs. At most one log exists per
// (routine, date); the UNIQUE index enforces it, not this code.
type OccurrenceStore struct {
	db DBTX
}

func NewOccurrenceStore(db DBTX) *OccurrenceStore {
	return &OccurrenceStore{db: db}
}

// WithTx returns an OccurrenceStore bound to tx.
func (s *OccurrenceStore) WithTx(tx *sql.Tx) *OccurrenceStore {
	return &OccurrenceStore{db: tx}
}

func scanOccurrence(scanner interface{ Scan(...any) error }) (*model.OccurrenceLog, error) {
	var l model.OccurrenceLog
	var date, status string
	var verifiedAt sql.NullTime

	err := scanner.Scan(&l.ID, &l.RoutineID, &l.FamilyID, &l.UserID, &date, &status, &l.Points, &verifiedAt, &l.CreatedAt)
	if err != nil {
		return nil, err
	}

	if l.Date, err = parseDate(date); err != nil {
		return nil, err
	}
	if l.Status, err = model.ParseStatus(status); err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		l.VerifiedAt = &verifiedAt.Time
	}
	return &l, nil
}

const occurrenceCols = `id, routine_id, family_id, user_id, occurrence_date, status, points, verified_at, created_at`

// FindLog returns the log for (routineID, date), or nil when none exists.
func (s *OccurrenceStore) FindLog(ctx context.Context, routineID int64, date civil.Date) (*model.OccurrenceLog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+occurrenceCols+` FROM occurrence_logs WHERE routine_id = ? AND occurrence_date = ?`,
		routineID, date.String(),
	)
	l, err := scanOccurrence(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find occurrence log: %w", err)
	}
	return l, nil
}

func (s *OccurrenceStore) GetByID(ctx context.Context, id int64) (*model.OccurrenceLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+occurrenceCols+` FROM occurrence_logs WHERE id = ?`, id)
	l, err := scanOccurrence(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get occurrence log: %w", err)
	}
	return l, nil
}

// CreateLog inserts the log for (routine, date). A concurrent or repeated
// insert for the same pair fails with ErrAlreadyLogged.
func (s *OccurrenceStore) CreateLog(ctx context.Context, routine model.Routine, userID int64, date civil.Date, status model.Status, verifiedAt *time.Time) (*model.OccurrenceLog, error) {
	var vAt sql.NullTime
	if verifiedAt != nil {
		vAt = sql.NullTime{Time: verifiedAt.UTC(), Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO occurrence_logs (routine_id, family_id, user_id, occurrence_date, status, points, verified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		routine.ID, routine.FamilyID, userID, date.String(), string(status), routine.Points, vAt,
	)
	if database.IsUniqueViolation(err) {
		return nil, ErrAlreadyLogged
	}
	if err != nil {
		return nil, fmt.Errorf("insert occurrence log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// MarkCompleted moves a pending log to completed. Logs that are already
// completed fail with ErrInvalidTransition; unknown ids with ErrNotFound.
func (s *OccurrenceStore) MarkCompleted(ctx context.Context, logID int64, verifiedAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE occurrence_logs SET status = ?, verified_at = ? WHERE id = ? AND status = ?`,
		string(model.StatusCompleted), verifiedAt.UTC(), logID, string(model.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	existing, err := s.GetByID(ctx, logID)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrNotFound
	}
	return ErrInvalidTransition
}

// ListByDate returns every log of a family for one date.
func (s *OccurrenceStore) ListByDate(ctx context.Context, familyID int64, date civil.Date) ([]model.OccurrenceLog, error) {
	return s.list(ctx,
		`SELECT `+occurrenceCols+` FROM occurrence_logs WHERE family_id = ? AND occurrence_date = ? ORDER BY id ASC`,
		familyID, date.String(),
	)
}

// ListPending returns a family's logs awaiting approval, oldest first.
func (s *OccurrenceStore) ListPending(ctx context.Context, familyID int64) ([]model.OccurrenceLog, error) {
	return s.list(ctx,
		`SELECT `+occurrenceCols+` FROM occurrence_logs WHERE family_id = ? AND status = ? ORDER BY occurrence_date ASC, id ASC`,
		familyID, string(model.StatusPending),
	)
}

// ListByRoutine returns the history of a routine, newest date first. It works
// for deleted routines too.
func (s *OccurrenceStore) ListByRoutine(ctx context.Context, routineID int64) ([]model.OccurrenceLog, error) {
	return s.list(ctx,
		`SELECT `+occurrenceCols+` FROM occurrence_logs WHERE routine_id = ? ORDER BY occurrence_date DESC`,
		routineID,
	)
}

func (s *OccurrenceStore) list(ctx context.Context, query string, args ...any) ([]model.OccurrenceLog, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list occurrence logs: %w", err)
	}
	defer rows.Close()

	var logs []model.OccurrenceLog
	for rows.Next() {
		l, err := scanOccurrence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan occurrence log: %w", err)
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}
