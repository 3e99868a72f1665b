package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/chorebook/internal/config"
	"github.com/dukerupert/chorebook/internal/database"
	"github.com/dukerupert/chorebook/internal/ledger"
	"github.com/dukerupert/chorebook/internal/logging"
	"github.com/dukerupert/chorebook/internal/scheduler"
	"github.com/dukerupert/chorebook/internal/server"
	"github.com/dukerupert/chorebook/internal/task"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.Error("chorebook stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ledgerSvc := ledger.NewService(db, logger.With("component", "ledger"))
	tasks := task.NewService(db, ledgerSvc, logger.With("component", "task"))
	srv := server.New(db, ledgerSvc, tasks, server.Config{
		CompleteRateLimit: cfg.CompleteRateLimit,
		ApproveRateLimit:  cfg.ApproveRateLimit,
	}, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("chorebook listening", "addr", httpServer.Addr, "db", cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		srv.RateLimiter().Run(ctx, 5*time.Minute)
		return nil
	})

	if cfg.ReconcileInterval > 0 {
		sched, err := scheduler.Start(ctx, ledgerSvc, cfg.ReconcileInterval, logger.With("component", "scheduler"))
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			return sched.Shutdown()
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
