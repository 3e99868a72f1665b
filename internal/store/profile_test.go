package store

import (
	"context"
	"testing"

	"github.com/dukerupert/chorebook/internal/model"
)

func TestProfileRoleAndPIN(t *testing.T) {
	f := setupTestDB(t)
	ctx := context.Background()
	ps := NewProfileStore(f.db)

	if f.parent.Role != model.RoleOwner || !f.parent.Role.IsAdmin() {
		t.Errorf("parent role = %q, want admin-capable owner", f.parent.Role)
	}
	if f.child.Role.IsAdmin() {
		t.Error("member should not be admin")
	}

	promoted, err := ps.UpdateRole(ctx, f.child.UserID, model.RoleAdmin)
	if err != nil {
		t.Fatalf("update role: %v", err)
	}
	if !promoted.Role.IsAdmin() {
		t.Errorf("role = %q, want admin", promoted.Role)
	}

	hash, err := ps.GetPINHash(ctx, f.parent.UserID)
	if err != nil {
		t.Fatalf("get pin hash: %v", err)
	}
	if hash != "" {
		t.Errorf("hash = %q, want empty", hash)
	}

	if err := ps.SetPIN(ctx, f.parent.UserID, "$2a$hash"); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	p, _ := ps.GetByID(ctx, f.parent.UserID)
	if !p.HasPIN {
		t.Error("expected HasPIN after SetPIN")
	}

	if err := ps.ClearPIN(ctx, f.parent.UserID); err != nil {
		t.Fatalf("clear pin: %v", err)
	}
	p, _ = ps.GetByID(ctx, f.parent.UserID)
	if p.HasPIN {
		t.Error("expected no PIN after ClearPIN")
	}

	if _, err := ps.GetPINHash(ctx, 999); err != ErrNotFound {
		t.Errorf("missing profile err = %v, want ErrNotFound", err)
	}
}

func TestLeaderboard(t *testing.T) {
	f := setupTestDB(t)
	ctx := context.Background()
	ls := NewLedgerStore(f.db)

	ls.AddToBalance(ctx, f.child.UserID, 30)
	ls.AddToBalance(ctx, f.parent.UserID, 10)

	board, err := NewProfileStore(f.db).Leaderboard(ctx, f.family.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(board))
	}
	if board[0].Name != "Child" || board[0].Balance != 30 {
		t.Errorf("board[0] = %+v, want Child/30", board[0])
	}
}
