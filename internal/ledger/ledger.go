// Package ledger is the authoritative record of point changes.
//
// Every change is an appended entry; the balance cached on a profile is
// updated in the same transaction and can always be rebuilt from the
// entries with Replay or Reconcile.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukerupert/chorebook/internal/database"
	"github.com/dukerupert/chorebook/internal/model"
	"github.com/dukerupert/chorebook/internal/store"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be non-zero")
	ErrInvalidCost         = errors.New("cost must be positive")
	ErrInvalidReason       = errors.New("reason is required")
	ErrUnknownUser         = errors.New("unknown user")
	ErrFamilyMismatch      = errors.New("user does not belong to family")
	ErrRewardNotFound      = errors.New("reward not found")
)

type Service struct {
	db       *sql.DB
	entries  *store.LedgerStore
	profiles *store.ProfileStore
	rewards  *store.RewardStore
	logger   *slog.Logger
}

func NewService(db *sql.DB, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		entries:  store.NewLedgerStore(db),
		profiles: store.NewProfileStore(db),
		rewards:  store.NewRewardStore(db),
		logger:   logger,
	}
}

// Redemption is the outcome of a successful debit.
type Redemption struct {
	Entry   *model.LedgerEntry `json:"entry"`
	Balance int64              `json:"balance"`
}

// Drift describes a profile whose cached balance disagreed with its ledger.
type Drift struct {
	UserID   int64 `json:"user_id"`
	FamilyID int64 `json:"family_id"`
	Cached   int64 `json:"cached"`
	Ledger   int64 `json:"ledger"`
}

// Credit appends a signed entry for userID and moves the cached balance with
// it. Negative amounts are manual deductions and may take a balance below zero.
func (s *Service) Credit(ctx context.Context, userID, familyID, amount int64, reason string) (*model.LedgerEntry, error) {
	var entry *model.LedgerEntry
	err := database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		entry, err = s.CreditTx(ctx, tx, userID, familyID, amount, reason, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("points credited", "user_id", userID, "amount", amount, "entry_id", entry.ID)
	return entry, nil
}

// CreditTx is Credit inside a caller-owned transaction. occurrenceLogID links
// the entry to the completion that earned it.
func (s *Service) CreditTx(ctx context.Context, tx *sql.Tx, userID, familyID, amount int64, reason string, occurrenceLogID *int64) (*model.LedgerEntry, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrInvalidReason
	}
	if err := s.checkMember(ctx, tx, userID, familyID); err != nil {
		return nil, err
	}

	entries := s.entries.WithTx(tx)
	entry, err := entries.Append(ctx, userID, familyID, amount, reason, occurrenceLogID)
	if err != nil {
		return nil, err
	}
	if err := entries.AddToBalance(ctx, userID, amount); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) checkMember(ctx context.Context, tx *sql.Tx, userID, familyID int64) error {
	p, err := s.profiles.WithTx(tx).GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrUnknownUser
	}
	if p.FamilyID != familyID {
		return ErrFamilyMismatch
	}
	return nil
}

// Balance returns the cached balance, which every writer keeps in step with the ledger.
func (s *Service) Balance(ctx context.Context, userID int64) (int64, error) {
	b, err := s.entries.CachedBalance(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrUnknownUser
	}
	return b, err
}

// BalanceTx reads the cached balance inside a caller-owned transaction.
func (s *Service) BalanceTx(ctx context.Context, tx *sql.Tx, userID int64) (int64, error) {
	b, err := s.entries.WithTx(tx).CachedBalance(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrUnknownUser
	}
	return b, err
}

// Redeem debits cost from userID, failing with ErrInsufficientBalance rather
// than letting the ledger sum go negative. The cached balance is rewritten
// from the ledger as part of the debit.
func (s *Service) Redeem(ctx context.Context, userID, cost int64, reason string) (*Redemption, error) {
	var out *Redemption
	err := database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		out, err = s.redeemTx(ctx, tx, userID, cost, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("points redeemed", "user_id", userID, "cost", cost, "balance", out.Balance)
	return out, nil
}

func (s *Service) redeemTx(ctx context.Context, tx *sql.Tx, userID, cost int64, reason string) (*Redemption, error) {
	if cost <= 0 {
		return nil, ErrInvalidCost
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrInvalidReason
	}

	p, err := s.profiles.WithTx(tx).GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrUnknownUser
	}

	// The ledger sum decides sufficiency. The transaction holds the write
	// lock from BEGIN, so no other writer can move the sum before the debit lands.
	entries := s.entries.WithTx(tx)
	sum, err := entries.Sum(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sum < cost {
		return nil, ErrInsufficientBalance
	}
	entry, err := entries.Append(ctx, userID, p.FamilyID, -cost, reason, nil)
	if err != nil {
		return nil, err
	}
	balance := sum - cost
	if p.PointsBalance != sum {
		s.logger.Warn("balance drift repaired on redeem", "user_id", userID, "cached", p.PointsBalance, "ledger", sum)
	}
	if err := entries.SetCachedBalance(ctx, userID, balance); err != nil {
		return nil, err
	}
	return &Redemption{Entry: entry, Balance: balance}, nil
}

// RedeemReward redeems an active reward from the user's own family catalog.
func (s *Service) RedeemReward(ctx context.Context, userID, rewardID int64) (*Redemption, error) {
	var out *Redemption
	err := database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		reward, err := s.rewards.WithTx(tx).GetByID(ctx, rewardID)
		if err != nil {
			return err
		}
		p, err := s.profiles.WithTx(tx).GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrUnknownUser
		}
		if reward == nil || !reward.Active || reward.FamilyID != p.FamilyID {
			return ErrRewardNotFound
		}
		out, err = s.redeemTx(ctx, tx, userID, int64(reward.PointCost), "Reward: "+reward.Title)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("reward redeemed", "user_id", userID, "reward_id", rewardID, "balance", out.Balance)
	return out, nil
}

// History returns a user's entries, newest first.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]model.LedgerEntry, error) {
	return s.entries.ListByUser(ctx, userID, limit)
}

// Replay sums the ledger for userID, ignoring the cache.
func (s *Service) Replay(ctx context.Context, userID int64) (int64, error) {
	return s.entries.Sum(ctx, userID)
}

// Reconcile rewrites every cached balance that disagrees with the ledger and
// reports what it changed.
func (s *Service) Reconcile(ctx context.Context) ([]Drift, error) {
	var drifts []Drift
	err := database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		drifts = nil
		entries := s.entries.WithTx(tx)
		checks, err := entries.CheckBalances(ctx)
		if err != nil {
			return err
		}
		for _, c := range checks {
			if c.Cached == c.Ledger {
				continue
			}
			if err := entries.SetCachedBalance(ctx, c.UserID, c.Ledger); err != nil {
				return err
			}
			drifts = append(drifts, Drift{UserID: c.UserID, FamilyID: c.FamilyID, Cached: c.Cached, Ledger: c.Ledger})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile balances: %w", err)
	}

	for _, d := range drifts {
		s.logger.Warn("balance drift repaired", "user_id", d.UserID, "cached", d.Cached, "ledger", d.Ledger)
	}
	return drifts, nil
}

// Leaderboard returns a family's balances, highest first.
func (s *Service) Leaderboard(ctx context.Context, familyID int64) ([]model.PointBalance, error) {
	return s.profiles.Leaderboard(ctx, familyID)
}
