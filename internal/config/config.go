// Package config reads process settings from the environment, loading a
// .env file first when one is present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              string
	DBPath            string
	LogLevel          string
	LogFormat         string
	ReconcileInterval time.Duration
	DefaultTimezone   string
	// CompleteRateLimit is the number of completion requests allowed per
	// client per minute. Zero disables the limit.
	CompleteRateLimit int
	// ApproveRateLimit is the number of approval requests allowed per
	// approver per minute. It bounds kiosk PIN guessing.
	ApproveRateLimit int
}

// Load reads CHOREBOOK_* variables, falling back to defaults for anything unset.
// Variables already in the environment win over the .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:            getenv("CHOREBOOK_PORT", "8080"),
		DBPath:          getenv("CHOREBOOK_DB_PATH", "chorebook.db"),
		LogLevel:        getenv("CHOREBOOK_LOG_LEVEL", "info"),
		LogFormat:       getenv("CHOREBOOK_LOG_FORMAT", "text"),
		DefaultTimezone: getenv("CHOREBOOK_DEFAULT_TIMEZONE", "UTC"),
	}

	interval, err := time.ParseDuration(getenv("CHOREBOOK_RECONCILE_INTERVAL", "24h"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CHOREBOOK_RECONCILE_INTERVAL: %w", err)
	}
	if interval < 0 {
		return Config{}, fmt.Errorf("CHOREBOOK_RECONCILE_INTERVAL must not be negative")
	}
	cfg.ReconcileInterval = interval

	if cfg.CompleteRateLimit, err = rateLimit("CHOREBOOK_COMPLETE_RATE_LIMIT", "30"); err != nil {
		return Config{}, err
	}
	if cfg.ApproveRateLimit, err = rateLimit("CHOREBOOK_APPROVE_RATE_LIMIT", "10"); err != nil {
		return Config{}, err
	}

	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return Config{}, fmt.Errorf("load CHOREBOOK_DEFAULT_TIMEZONE: %w", err)
	}

	return cfg, nil
}

func rateLimit(key, fallback string) (int, error) {
	limit, err := strconv.Atoi(getenv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if limit < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return limit, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
