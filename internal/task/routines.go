package task

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dukerupert/chorebook/internal/auth"
	"github.com/dukerupert/chorebook/internal/model"
	"github.com/dukerupert/chorebook/internal/recurrence"
	"github.com/dukerupert/chorebook/internal/store"
)

var ErrInvalidRoutine = errors.New("invalid routine")

// RoutineInput is what an admin supplies to define a routine. AnchorAt
// defaults to now; Frequency and AnchorAt are ignored on update.
type RoutineInput struct {
	SubjectID            *int64
	Title                string
	Points               int
	Frequency            model.Frequency
	AnchorAt             time.Time
	RequiresVerification bool
	AssignedTo           []int64
}

// CreateRoutine defines a new routine in the actor's family. The anchor date
// is the anchor timestamp's calendar date in the family time zone.
func (s *Service) CreateRoutine(ctx context.Context, actor auth.AuthContext, in RoutineInput) (*model.Routine, error) {
	if !actor.Role.IsAdmin() {
		return nil, ErrNotAuthorized
	}
	if err := s.validateRoutine(ctx, actor.FamilyID, in, true); err != nil {
		return nil, err
	}

	f, err := s.families.GetByID(ctx, actor.FamilyID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, store.ErrNotFound
	}
	anchorAt := in.AnchorAt
	if anchorAt.IsZero() {
		anchorAt = s.now()
	}

	r, err := s.routines.Create(ctx, store.RoutineParams{
		FamilyID:             actor.FamilyID,
		SubjectID:            in.SubjectID,
		Title:                strings.TrimSpace(in.Title),
		Points:               in.Points,
		Frequency:            in.Frequency,
		AnchorAt:             anchorAt,
		AnchorDate:           recurrence.DateIn(anchorAt, f.Location()),
		RequiresVerification: in.RequiresVerification,
		AssignedTo:           model.NewAssignees(in.AssignedTo...),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("routine created", "routine_id", r.ID, "family_id", r.FamilyID, "frequency", r.Frequency)
	return r, nil
}

// UpdateRoutine edits the mutable fields of a routine.
// Logs already recorded keep the points they captured.
func (s *Service) UpdateRoutine(ctx context.Context, actor auth.AuthContext, id int64, in RoutineInput) (*model.Routine, error) {
	if !actor.Role.IsAdmin() {
		return nil, ErrNotAuthorized
	}
	existing, err := s.routines.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil || existing.FamilyID != actor.FamilyID {
		return nil, ErrRoutineNotFound
	}
	if err := s.validateRoutine(ctx, actor.FamilyID, in, false); err != nil {
		return nil, err
	}

	return s.routines.Update(ctx, id, store.RoutineParams{
		SubjectID:            in.SubjectID,
		Title:                strings.TrimSpace(in.Title),
		Points:               in.Points,
		RequiresVerification: in.RequiresVerification,
		AssignedTo:           model.NewAssignees(in.AssignedTo...),
	})
}

// DeleteRoutine removes a routine. Its logs stay behind as history.
func (s *Service) DeleteRoutine(ctx context.Context, actor auth.AuthContext, id int64) error {
	if !actor.Role.IsAdmin() {
		return ErrNotAuthorized
	}
	existing, err := s.routines.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil || existing.FamilyID != actor.FamilyID {
		return ErrRoutineNotFound
	}
	if err := s.routines.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("routine deleted", "routine_id", id, "family_id", actor.FamilyID)
	return nil
}

// GetRoutine returns a routine of the actor's family.
func (s *Service) GetRoutine(ctx context.Context, actor auth.AuthContext, id int64) (*model.Routine, error) {
	r, err := s.routines.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil || r.FamilyID != actor.FamilyID {
		return nil, ErrRoutineNotFound
	}
	return r, nil
}

func (s *Service) ListRoutines(ctx context.Context, actor auth.AuthContext) ([]model.Routine, error) {
	return s.routines.ListByFamily(ctx, actor.FamilyID)
}

func (s *Service) validateRoutine(ctx context.Context, familyID int64, in RoutineInput, creating bool) error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrInvalidRoutine
	}
	if creating {
		if _, err := model.ParseFrequency(string(in.Frequency)); err != nil {
			return ErrInvalidRoutine
		}
	}
	for _, userID := range in.AssignedTo {
		p, err := s.profiles.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if p == nil || p.FamilyID != familyID {
			return ErrInvalidRoutine
		}
	}
	return nil
}
