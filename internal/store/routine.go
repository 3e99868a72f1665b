package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dukerupert/chorebook/internal/model"
)

type RoutineStore struct {
	db DBTX
}

func NewRoutineStore(db DBTX) *RoutineStore {
	return &RoutineStore{db: db}
}

// WithTx returns a RoutineStore bound to tx.
func (s *RoutineStore) WithTx(tx *sql.Tx) *RoutineStore {
	return &RoutineStore{db: tx}
}

// RoutineParams holds the fields accepted on create. Frequency and anchor are
// ignored by Update: they are fixed once a routine exists.
type RoutineParams struct {
	FamilyID             int64
	SubjectID            *int64
	Title                string
	Points               int
	Frequency            model.Frequency
	AnchorAt             time.Time
	AnchorDate           civil.Date
	RequiresVerification bool
	AssignedTo           model.Assignees
}

func scanRoutine(scanner interface{ Scan(...any) error }) (*model.Routine, error) {
	var r model.Routine
	var subjectID sql.NullInt64
	var freq, anchorDate string
	var assignees sql.NullString

	err := scanner.Scan(
		&r.ID, &r.FamilyID, &subjectID, &r.Title, &r.Points, &freq,
		&r.AnchorAt, &anchorDate, &r.RequiresVerification, &assignees,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if subjectID.Valid {
		r.SubjectID = &subjectID.Int64
	}
	if r.Frequency, err = model.ParseFrequency(freq); err != nil {
		return nil, err
	}
	if r.AnchorDate, err = parseDate(anchorDate); err != nil {
		return nil, err
	}
	if r.AssignedTo, err = parseAssignees(assignees.String); err != nil {
		return nil, err
	}
	return &r, nil
}

func parseAssignees(csv string) (model.Assignees, error) {
	if csv == "" {
		return nil, nil
	}
	parts := strings.Split(csv, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse assignee %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return model.NewAssignees(ids...), nil
}

const routineCols = `r.id, r.family_id, r.subject_id, r.title, r.points, r.frequency,
	r.anchor_at, r.anchor_date, r.requires_verification,
	(SELECT GROUP_CONCAT(a.user_id) FROM routine_assignees a WHERE a.routine_id = r.id),
	r.created_at, r.updated_at`

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func (s *RoutineStore) Create(ctx context.Context, p RoutineParams) (*model.Routine, error) {
	var id int64
	err := withTx(ctx, s.db, func(q DBTX) error {
		result, err := q.ExecContext(ctx,
			`INSERT INTO routines (family_id, subject_id, title, points, frequency, anchor_at, anchor_date, requires_verification)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.FamilyID, nullInt64(p.SubjectID), p.Title, p.Points, string(p.Frequency),
			p.AnchorAt.UTC(), p.AnchorDate.String(), boolToInt(p.RequiresVerification),
		)
		if err != nil {
			return fmt.Errorf("insert routine: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return replaceAssignees(ctx, q, id, p.AssignedTo)
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func replaceAssignees(ctx context.Context, q DBTX, routineID int64, assignees model.Assignees) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM routine_assignees WHERE routine_id = ?`, routineID); err != nil {
		return fmt.Errorf("clear assignees: %w", err)
	}
	for _, userID := range model.NewAssignees(assignees...) {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO routine_assignees (routine_id, user_id) VALUES (?, ?)`,
			routineID, userID,
		); err != nil {
			return fmt.Errorf("insert assignee: %w", err)
		}
	}
	return nil
}

func (s *RoutineStore) GetByID(ctx context.Context, id int64) (*model.Routine, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+routineCols+` FROM routines r WHERE r.id = ?`, id)
	r, err := scanRoutine(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get routine: %w", err)
	}
	return r, nil
}

func (s *RoutineStore) ListByFamily(ctx context.Context, familyID int64) ([]model.Routine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+routineCols+` FROM routines r WHERE r.family_id = ? ORDER BY r.title ASC, r.id ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}
	defer rows.Close()

	var routines []model.Routine
	for rows.Next() {
		r, err := scanRoutine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan routine: %w", err)
		}
		routines = append(routines, *r)
	}
	return routines, rows.Err()
}

// Update changes the mutable fields of a routine. Existing occurrence logs
// keep the points captured when they were created.
func (s *RoutineStore) Update(ctx context.Context, id int64, p RoutineParams) (*model.Routine, error) {
	err := withTx(ctx, s.db, func(q DBTX) error {
		_, err := q.ExecContext(ctx,
			`UPDATE routines SET subject_id = ?, title = ?, points = ?, requires_verification = ? WHERE id = ?`,
			nullInt64(p.SubjectID), p.Title, p.Points, boolToInt(p.RequiresVerification), id,
		)
		if err != nil {
			return fmt.Errorf("update routine: %w", err)
		}
		return replaceAssignees(ctx, q, id, p.AssignedTo)
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// Delete removes the routine and its assignees. Occurrence logs are kept as history.
func (s *RoutineStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM routines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete routine: %w", err)
	}
	return nil
}
