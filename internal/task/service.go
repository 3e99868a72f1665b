// Package task answers "what is due today" and records completions,
// approvals and the points they earn.
package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dukerupert/chorebook/internal/auth"
	"github.com/dukerupert/chorebook/internal/database"
	"github.com/dukerupert/chorebook/internal/ledger"
	"github.com/dukerupert/chorebook/internal/model"
	"github.com/dukerupert/chorebook/internal/recurrence"
	"github.com/dukerupert/chorebook/internal/store"
)

// State is the display state of a routine on a given date.
type State string

const (
	StateNotCompleted State = "not_completed"
	StatePending      State = "pending"
	StateCompleted    State = "completed"
)

// OccurrenceItem is one routine due on a date, merged with its log if any.
type OccurrenceItem struct {
	Routine model.Routine        `json:"routine"`
	Log     *model.OccurrenceLog `json:"log"`
	State   State                `json:"state"`
}

// Result is the outcome of a completion or an approval. Entry is nil when
// nothing was credited; Balance belongs to the user who owns the log.
type Result struct {
	Log     *model.OccurrenceLog `json:"log"`
	Entry   *model.LedgerEntry   `json:"entry"`
	Balance int64                `json:"balance"`
}

type Service struct {
	db       *sql.DB
	families *store.FamilyStore
	profiles *store.ProfileStore
	routines *store.RoutineStore
	logs     *store.OccurrenceStore
	ledger   *ledger.Service
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(db *sql.DB, ledgerSvc *ledger.Service, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		db:       db,
		families: store.NewFamilyStore(db),
		profiles: store.NewProfileStore(db),
		routines: store.NewRoutineStore(db),
		logs:     store.NewOccurrenceStore(db),
		ledger:   ledgerSvc,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current calendar date in the family's time zone.
func (s *Service) Today(ctx context.Context, familyID int64) (civil.Date, error) {
	f, err := s.families.GetByID(ctx, familyID)
	if err != nil {
		return civil.Date{}, err
	}
	if f == nil {
		return civil.Date{}, store.ErrNotFound
	}
	return recurrence.DateIn(s.now(), f.Location()), nil
}

// ListOccurrences returns every routine of the family that occurs on date,
// each with the log recorded for that date.
func (s *Service) ListOccurrences(ctx context.Context, familyID int64, date civil.Date) ([]OccurrenceItem, error) {
	routines, err := s.routines.ListByFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	logs, err := s.logs.ListByDate(ctx, familyID, date)
	if err != nil {
		return nil, err
	}
	byRoutine := make(map[int64]model.OccurrenceLog, len(logs))
	for _, l := range logs {
		byRoutine[l.RoutineID] = l
	}

	items := []OccurrenceItem{}
	for _, r := range routines {
		if !recurrence.OccursOnRoutine(r, date) {
			continue
		}
		item := OccurrenceItem{Routine: r, State: StateNotCompleted}
		if l, ok := byRoutine[r.ID]; ok {
			item.Log = &l
			item.State = stateOf(l.Status)
		}
		items = append(items, item)
	}
	return items, nil
}

func stateOf(st model.Status) State {
	if st == model.StatusPending {
		return StatePending
	}
	return StateCompleted
}

// Complete records actor's completion of routineID on date. Routines that
// require verification are logged pending for non-admins and credit nothing
// until approved; everything else is credited in the same transaction.
func (s *Service) Complete(ctx context.Context, actor auth.AuthContext, routineID int64, date civil.Date) (*Result, error) {
	var res *Result
	err := database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		r, err := s.routines.WithTx(tx).GetByID(ctx, routineID)
		if err != nil {
			return err
		}
		if r == nil || r.FamilyID != actor.FamilyID {
			return ErrRoutineNotFound
		}

		f, err := s.families.WithTx(tx).GetByID(ctx, actor.FamilyID)
		if err != nil {
			return err
		}
		if f == nil {
			return ErrRoutineNotFound
		}
		now := s.now()
		today := recurrence.DateIn(now, f.Location())

		if err := checkEligibility(*r, actor, date, today); err != nil {
			return err
		}
		if !recurrence.OccursOnRoutine(*r, date) {
			return ErrNotOccurring
		}

		status := initialStatus(*r, actor)
		var verifiedAt *time.Time
		if status == model.StatusCompleted {
			verifiedAt = &now
		}
		l, err := s.logs.WithTx(tx).CreateLog(ctx, *r, actor.UserID, date, status, verifiedAt)
		if err != nil {
			return err
		}

		res = &Result{Log: l}
		if status == model.StatusCompleted {
			res.Entry, err = s.credit(ctx, tx, l, r.Title)
			if err != nil {
				return err
			}
		}
		res.Balance, err = s.ledger.BalanceTx(ctx, tx, actor.UserID)
		return err
	})
	if err != nil {
		s.logOutcome("complete", err, "routine_id", routineID, "user_id", actor.UserID, "date", date.String())
		return nil, err
	}

	s.logger.Info("occurrence logged",
		"routine_id", routineID,
		"log_id", res.Log.ID,
		"user_id", actor.UserID,
		"date", date.String(),
		"status", res.Log.Status,
	)
	return res, nil
}

// Approve moves a pending log to completed and credits the points captured
// when it was logged to the user who completed it. An approver with a PIN
// set must supply it.
func (s *Service) Approve(ctx context.Context, approver auth.AuthContext, logID int64, pin string) (*Result, error) {
	if !approver.Role.IsAdmin() {
		return nil, ErrNotAuthorized
	}
	if err := s.checkPIN(ctx, approver.UserID, pin); err != nil {
		s.logOutcome("approve", err, "log_id", logID, "approver_id", approver.UserID)
		return nil, err
	}

	var res *Result
	err := database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		logs := s.logs.WithTx(tx)
		l, err := logs.GetByID(ctx, logID)
		if err != nil {
			return err
		}
		if l == nil {
			return ErrLogNotFound
		}
		if err := checkApproval(*l, approver); err != nil {
			return err
		}

		if err := logs.MarkCompleted(ctx, l.ID, s.now()); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrLogNotFound
			}
			return err
		}
		l, err = logs.GetByID(ctx, logID)
		if err != nil {
			return err
		}

		title := fmt.Sprintf("Routine #%d", l.RoutineID)
		r, err := s.routines.WithTx(tx).GetByID(ctx, l.RoutineID)
		if err != nil {
			return err
		}
		if r != nil {
			title = r.Title
		}

		res = &Result{Log: l}
		res.Entry, err = s.credit(ctx, tx, l, title)
		if err != nil {
			return err
		}
		res.Balance, err = s.ledger.BalanceTx(ctx, tx, l.UserID)
		return err
	})
	if err != nil {
		s.logOutcome("approve", err, "log_id", logID, "approver_id", approver.UserID)
		return nil, err
	}

	s.logger.Info("occurrence approved",
		"log_id", logID,
		"approver_id", approver.UserID,
		"user_id", res.Log.UserID,
		"points", res.Log.Points,
	)
	return res, nil
}

// credit pays out a completed log. Zero-point routines are logged but leave
// the ledger untouched.
func (s *Service) credit(ctx context.Context, tx *sql.Tx, l *model.OccurrenceLog, title string) (*model.LedgerEntry, error) {
	if l.Points == 0 {
		return nil, nil
	}
	return s.ledger.CreditTx(ctx, tx, l.UserID, l.FamilyID, int64(l.Points), title, &l.ID)
}

func (s *Service) checkPIN(ctx context.Context, userID int64, pin string) error {
	hash, err := s.profiles.GetPINHash(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotAuthorized
		}
		return err
	}
	if hash == "" {
		return nil
	}
	if pin == "" {
		return ErrPINRequired
	}
	if !auth.CheckPIN(hash, pin) {
		return ErrPINInvalid
	}
	return nil
}

// ListPending returns the approver's family logs awaiting approval, oldest first.
func (s *Service) ListPending(ctx context.Context, approver auth.AuthContext) ([]model.OccurrenceLog, error) {
	if !approver.Role.IsAdmin() {
		return nil, ErrNotAuthorized
	}
	return s.logs.ListPending(ctx, approver.FamilyID)
}

// History returns the logs recorded for a routine in the actor's family.
func (s *Service) History(ctx context.Context, actor auth.AuthContext, routineID int64) ([]model.OccurrenceLog, error) {
	r, err := s.routines.GetByID(ctx, routineID)
	if err != nil {
		return nil, err
	}
	if r == nil || r.FamilyID != actor.FamilyID {
		return nil, ErrRoutineNotFound
	}
	return s.logs.ListByRoutine(ctx, routineID)
}

func (s *Service) logOutcome(op string, err error, args ...any) {
	args = append(args, "error", err)
	if IsRuleViolation(err) {
		s.logger.Info(op+" rejected", args...)
		return
	}
	s.logger.Error(op+" failed", args...)
}
