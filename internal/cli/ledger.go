package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/chorebook/internal/ledger"
)

type reconcileOptions struct {
	*RootOptions
	Check bool
}

func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &reconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild cached balances from the ledger",
		Long: `Compare every profile's cached balance with the sum of its ledger
entries and rewrite the cache where they differ.

Exit codes:
  0 - No drift, or drift repaired
  1 - Drift found with --check
  2 - Command error`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Check, "check", false, "exit non-zero when any drift was found")
	return cmd
}

func runReconcile(cmd *cobra.Command, opts *reconcileOptions) error {
	db, err := opts.open()
	if err != nil {
		return err
	}
	defer db.Close()

	drifts, err := ledger.NewService(db, opts.logger(cmd)).Reconcile(context.Background())
	if err != nil {
		return wrapExitError(ExitCommandError, "reconcile failed", err)
	}
	if drifts == nil {
		drifts = []ledger.Drift{}
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		if err := writeJSON(out, map[string]any{"drifts": drifts}); err != nil {
			return err
		}
	} else if len(drifts) == 0 {
		fmt.Fprintln(out, "All balances match the ledger.")
	} else {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "USER\tFAMILY\tCACHED\tLEDGER")
		for _, d := range drifts {
			fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", d.UserID, d.FamilyID, d.Cached, d.Ledger)
		}
		tw.Flush()
		fmt.Fprintf(out, "Repaired %d balance(s).\n", len(drifts))
	}

	if opts.Check && len(drifts) > 0 {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d balance(s) drifted from the ledger", len(drifts))}
	}
	return nil
}

type userOptions struct {
	*RootOptions
	UserID int64
	Limit  int
}

func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &userOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show a user's cached and replayed balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBalance(cmd, opts)
		},
	}
	cmd.Flags().Int64Var(&opts.UserID, "user", 0, "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runBalance(cmd *cobra.Command, opts *userOptions) error {
	db, err := opts.open()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	svc := ledger.NewService(db, opts.logger(cmd))
	cached, err := svc.Balance(ctx, opts.UserID)
	if err != nil {
		return wrapExitError(ExitCommandError, "read balance", err)
	}
	replayed, err := svc.Replay(ctx, opts.UserID)
	if err != nil {
		return wrapExitError(ExitCommandError, "replay ledger", err)
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return writeJSON(out, map[string]any{"user_id": opts.UserID, "cached": cached, "ledger": replayed})
	}
	fmt.Fprintf(out, "user %d: %d points (ledger %d)\n", opts.UserID, cached, replayed)
	if cached != replayed {
		fmt.Fprintln(out, "Cached balance differs from the ledger; run reconcile.")
	}
	return nil
}

func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &userOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List a user's ledger entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}
	cmd.Flags().Int64Var(&opts.UserID, "user", 0, "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum entries to show")
	return cmd
}

func runHistory(cmd *cobra.Command, opts *userOptions) error {
	db, err := opts.open()
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := ledger.NewService(db, opts.logger(cmd)).History(context.Background(), opts.UserID, opts.Limit)
	if err != nil {
		return wrapExitError(ExitCommandError, "read history", err)
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return writeJSON(out, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No ledger entries.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tAMOUNT\tREASON")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%+d\t%s\n", e.ID, e.CreatedAt.Format("2006-01-02 15:04"), e.Amount, e.Reason)
	}
	return tw.Flush()
}
