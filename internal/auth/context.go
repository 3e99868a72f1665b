package auth

import (
	"context"

	"github.com/dukerupert/chorebook/internal/model"
)

type contextKey struct{}

// AuthContext is the already-authenticated principal making a request.
type AuthContext struct {
	UserID   int64
	FamilyID int64
	Role     model.Role
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func FamilyID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.FamilyID
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

// IsAdmin reports whether the principal is an owner or admin.
func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role.IsAdmin()
}
