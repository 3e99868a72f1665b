package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/chorebook/internal/model"
)

type ProfileStore struct {
	db DBTX
}

func NewProfileStore(db DBTX) *ProfileStore {
	return &ProfileStore{db: db}
}

// WithTx returns a ProfileStore bound to tx.
func (s *ProfileStore) WithTx(tx *sql.Tx) *ProfileStore {
	return &ProfileStore{db: tx}
}

func scanProfile(scanner interface{ Scan(...any) error }) (*model.Profile, error) {
	var p model.Profile
	var role string
	err := scanner.Scan(&p.UserID, &p.FamilyID, &p.Name, &role, &p.PointsBalance, &p.HasPIN, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Role, err = model.ParseRole(role)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const profileCols = `user_id, family_id, name, role, points_balance, pin IS NOT NULL, created_at, updated_at`

func (s *ProfileStore) Create(ctx context.Context, familyID int64, name string, role model.Role) (*model.Profile, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (family_id, name, role) VALUES (?, ?, ?)`,
		familyID, name, string(role),
	)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ProfileStore) GetByID(ctx context.Context, userID int64) (*model.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileCols+` FROM profiles WHERE user_id = ?`, userID)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *ProfileStore) ListByFamily(ctx context.Context, familyID int64) ([]model.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileCols+` FROM profiles WHERE family_id = ? ORDER BY name ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

func (s *ProfileStore) UpdateRole(ctx context.Context, userID int64, role model.Role) (*model.Profile, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE profiles SET role = ? WHERE user_id = ?`, string(role), userID)
	if err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	return s.GetByID(ctx, userID)
}

func (s *ProfileStore) SetPIN(ctx context.Context, userID int64, hashedPIN string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE profiles SET pin = ? WHERE user_id = ?`, hashedPIN, userID)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

func (s *ProfileStore) ClearPIN(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE profiles SET pin = NULL WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("clear pin: %w", err)
	}
	return nil
}

// GetPINHash returns the stored bcrypt hash, or "" when no PIN is set.
func (s *ProfileStore) GetPINHash(ctx context.Context, userID int64) (string, error) {
	var pin sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT pin FROM profiles WHERE user_id = ?`, userID).Scan(&pin)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query pin: %w", err)
	}
	return pin.String, nil
}

// Leaderboard returns cached balances for a family, highest first.
func (s *ProfileStore) Leaderboard(ctx context.Context, familyID int64) ([]model.PointBalance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, name, points_balance FROM profiles WHERE family_id = ? ORDER BY points_balance DESC, name ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var balances []model.PointBalance
	for rows.Next() {
		var b model.PointBalance
		if err := rows.Scan(&b.UserID, &b.Name, &b.Balance); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}
