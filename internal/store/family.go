package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/chorebook/internal/model"
)

type FamilyStore struct {
	db DBTX
}

func NewFamilyStore(db DBTX) *FamilyStore {
	return &FamilyStore{db: db}
}

func (s *FamilyStore) WithTx(tx *sql.Tx) *FamilyStore {
	return &FamilyStore{db: tx}
}

func scanFamily(scanner interface{ Scan(...any) error }) (*model.Family, error) {
	var f model.Family
	err := scanner.Scan(&f.ID, &f.Name, &f.Timezone, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

const familyCols = `id, name, timezone, created_at, updated_at`

func (s *FamilyStore) Create(ctx context.Context, name, timezone string) (*model.Family, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO families (name, timezone) VALUES (?, ?)`, name, timezone)
	if err != nil {
		return nil, fmt.Errorf("insert family: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *FamilyStore) GetByID(ctx context.Context, id int64) (*model.Family, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+familyCols+` FROM families WHERE id = ?`, id)
	f, err := scanFamily(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family: %w", err)
	}
	return f, nil
}

func (s *FamilyStore) UpdateTimezone(ctx context.Context, id int64, timezone string) (*model.Family, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE families SET timezone = ? WHERE id = ?`, timezone, id)
	if err != nil {
		return nil, fmt.Errorf("update family timezone: %w", err)
	}
	return s.GetByID(ctx, id)
}
