// Package cli implements chorebookctl, the operator tool for a chorebook database.
package cli

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dukerupert/chorebook/internal/config"
	"github.com/dukerupert/chorebook/internal/database"
	"github.com/dukerupert/chorebook/internal/logging"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // reconcile --check found drift
	ExitCommandError = 2
)

// ExitError carries the process exit code for an error.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func wrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode extracts the exit code from an error returned by Execute.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Database string
	Format   string // "json" | "text"
	Verbose  bool
}

var validFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "chorebookctl",
		Short:         "Operate on a chorebook database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default CHOREBOOK_DB_PATH)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewBalanceCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewFamilyCommand(opts))
	cmd.AddCommand(NewProfileCommand(opts))

	return cmd
}

// config loads the service configuration so unset flags share its defaults.
func (o *RootOptions) config() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, wrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

func (o *RootOptions) open() (*sql.DB, error) {
	if o.Database == "" {
		cfg, err := o.config()
		if err != nil {
			return nil, err
		}
		o.Database = cfg.DBPath
	}
	db, err := database.Open(o.Database)
	if err != nil {
		return nil, wrapExitError(ExitCommandError, "failed to open database", err)
	}
	return db, nil
}

func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := "warn"
	if o.Verbose {
		level = "debug"
	}
	return logging.New(cmd.ErrOrStderr(), level, "text")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
