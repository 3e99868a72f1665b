package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dukerupert/chorebook/internal/database"
	"github.com/dukerupert/chorebook/internal/model"
)

type fixture struct {
	db     *sql.DB
	family *model.Family
	parent *model.Profile
	child  *model.Profile
}

func setupTestDB(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	family, err := NewFamilyStore(db).Create(ctx, "Test Family", "UTC")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	ps := NewProfileStore(db)
	parent, err := ps.Create(ctx, family.ID, "Parent", model.RoleOwner)
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := ps.Create(ctx, family.ID, "Child", model.RoleMember)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	return &fixture{db: db, family: family, parent: parent, child: child}
}

func (f *fixture) routine(t *testing.T, title string, points int, freq model.Frequency, assigned ...int64) *model.Routine {
	t.Helper()
	r, err := NewRoutineStore(f.db).Create(context.Background(), RoutineParams{
		FamilyID:   f.family.ID,
		Title:      title,
		Points:     points,
		Frequency:  freq,
		AnchorAt:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		AnchorDate: civil.Date{Year: 2024, Month: time.January, Day: 1},
		AssignedTo: model.NewAssignees(assigned...),
	})
	if err != nil {
		t.Fatalf("create routine: %v", err)
	}
	return r
}
