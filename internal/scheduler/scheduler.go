// Package scheduler runs the periodic ledger maintenance job.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/dukerupert/chorebook/internal/ledger"
)

// Reconciler repairs cached balances from the ledger.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]ledger.Drift, error)
}

// Start schedules reconciliation every interval, running once immediately.
// The returned scheduler must be shut down by the caller.
func Start(ctx context.Context, r Reconciler, interval time.Duration, logger *slog.Logger) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			runReconcile(ctx, r, logger)
		}),
		gocron.WithName("reconcile-balances"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		s.Shutdown()
		return nil, fmt.Errorf("schedule reconcile: %w", err)
	}

	s.Start()
	logger.Info("scheduler started", "job", "reconcile-balances", "interval", interval)
	return s, nil
}

func runReconcile(ctx context.Context, r Reconciler, logger *slog.Logger) {
	start := time.Now()
	drifts, err := r.Reconcile(ctx)
	if err != nil {
		logger.Error("reconcile balances", "error", err)
		return
	}
	logger.Info("reconcile balances", "repaired", len(drifts), "duration", time.Since(start))
}
