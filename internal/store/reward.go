package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/chorebook/internal/model"
)

type RewardStore struct {
	db DBTX
}

func NewRewardStore(db DBTX) *RewardStore {
	return &RewardStore{db: db}
}

// WithTx returns a RewardStore bound to tx.
func (s *RewardStore) WithTx(tx *sql.Tx) *RewardStore {
	return &RewardStore{db: tx}
}

func scanReward(scanner interface{ Scan(...any) error }) (*model.Reward, error) {
	var r model.Reward
	var active int

	err := scanner.Scan(&r.ID, &r.FamilyID, &r.Title, &r.Description, &r.PointCost, &active, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	r.Active = active != 0
	return &r, nil
}

const rewardCols = `id, family_id, title, description, point_cost, active, created_at`

func (s *RewardStore) Create(ctx context.Context, familyID int64, title, description string, pointCost int, active bool) (*model.Reward, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO rewards (family_id, title, description, point_cost, active) VALUES (?, ?, ?, ?, ?)`,
		familyID, title, description, pointCost, boolToInt(active),
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RewardStore) GetByID(ctx context.Context, id int64) (*model.Reward, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

// ListByFamily returns a family's rewards, active first, then by title.
func (s *RewardStore) ListByFamily(ctx context.Context, familyID int64, activeOnly bool) ([]model.Reward, error) {
	query := `SELECT ` + rewardCols + ` FROM rewards WHERE family_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY active DESC, title ASC`

	rows, err := s.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) Update(ctx context.Context, id int64, title, description string, pointCost int, active bool) (*model.Reward, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rewards SET title = ?, description = ?, point_cost = ?, active = ? WHERE id = ?`,
		title, description, pointCost, boolToInt(active), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RewardStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rewards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	return nil
}
