package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukerupert/chorebook/internal/ledger"
)

type countingReconciler struct {
	calls atomic.Int32
	err   error
}

func (c *countingReconciler) Reconcile(ctx context.Context) ([]ledger.Drift, error) {
	c.calls.Add(1)
	return nil, c.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStartRunsImmediatelyAndRepeats(t *testing.T) {
	rec := &countingReconciler{}
	s, err := Start(context.Background(), rec, 20*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Shutdown()

	deadline := time.Now().Add(2 * time.Second)
	for rec.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := rec.calls.Load(); got < 2 {
		t.Errorf("expected at least 2 runs, got %d", got)
	}
}

func TestReconcileErrorDoesNotStopJob(t *testing.T) {
	rec := &countingReconciler{err: errors.New("database is locked")}
	s, err := Start(context.Background(), rec, 20*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Shutdown()

	deadline := time.Now().Add(2 * time.Second)
	for rec.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := rec.calls.Load(); got < 2 {
		t.Errorf("expected job to keep running after errors, got %d runs", got)
	}
}

func TestStartRejectsZeroInterval(t *testing.T) {
	if _, err := Start(context.Background(), &countingReconciler{}, 0, testLogger()); err == nil {
		t.Error("expected error for zero interval")
	}
}
