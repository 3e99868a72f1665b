package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/chorebook/internal/model"
	"github.com/dukerupert/chorebook/internal/store"
)

// Families and profiles are provisioned by the identity system in
// production; these commands seed them for local use.

type familyOptions struct {
	*RootOptions
	FamilyID int64
	Name     string
	Timezone string
}

func NewFamilyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "family",
		Short: "Manage families",
	}

	opts := &familyOptions{RootOptions: rootOpts}
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a family",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFamilyCreate(cmd, opts)
		},
	}
	create.Flags().StringVar(&opts.Name, "name", "", "family name (required)")
	_ = create.MarkFlagRequired("name")
	create.Flags().StringVar(&opts.Timezone, "tz", "", "IANA time zone used for due dates (default CHOREBOOK_DEFAULT_TIMEZONE)")

	tzOpts := &familyOptions{RootOptions: rootOpts}
	setTZ := &cobra.Command{
		Use:   "set-tz",
		Short: "Change the time zone a family's due dates are computed in",
		Long: `Change a family's time zone. Stored anchor dates keep their calendar
date; only "today" moves to the new zone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFamilySetTZ(cmd, tzOpts)
		},
	}
	setTZ.Flags().Int64Var(&tzOpts.FamilyID, "family", 0, "family id (required)")
	_ = setTZ.MarkFlagRequired("family")
	setTZ.Flags().StringVar(&tzOpts.Timezone, "tz", "", "IANA time zone (required)")
	_ = setTZ.MarkFlagRequired("tz")

	cmd.AddCommand(create, setTZ)
	return cmd
}

func runFamilySetTZ(cmd *cobra.Command, opts *familyOptions) error {
	if _, err := time.LoadLocation(opts.Timezone); err != nil {
		return wrapExitError(ExitCommandError, "invalid time zone", err)
	}
	db, err := opts.open()
	if err != nil {
		return err
	}
	defer db.Close()

	f, err := store.NewFamilyStore(db).UpdateTimezone(context.Background(), opts.FamilyID, opts.Timezone)
	if err != nil {
		return wrapExitError(ExitCommandError, "update family", err)
	}
	if f == nil {
		return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("family %d not found", opts.FamilyID)}
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), f)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Family %d now uses %s\n", f.ID, f.Timezone)
	return nil
}

func runFamilyCreate(cmd *cobra.Command, opts *familyOptions) error {
	if opts.Timezone == "" {
		cfg, err := opts.config()
		if err != nil {
			return err
		}
		opts.Timezone = cfg.DefaultTimezone
	}
	if _, err := time.LoadLocation(opts.Timezone); err != nil {
		return wrapExitError(ExitCommandError, "invalid time zone", err)
	}
	db, err := opts.open()
	if err != nil {
		return err
	}
	defer db.Close()

	f, err := store.NewFamilyStore(db).Create(context.Background(), opts.Name, opts.Timezone)
	if err != nil {
		return wrapExitError(ExitCommandError, "create family", err)
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), f)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created family %d (%s, %s)\n", f.ID, f.Name, f.Timezone)
	return nil
}

type profileOptions struct {
	*RootOptions
	FamilyID int64
	UserID   int64
	Name     string
	Role     string
}

func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage family members",
	}

	opts := &profileOptions{RootOptions: rootOpts}
	create := &cobra.Command{
		Use:   "create",
		Short: "Add a member to a family",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfileCreate(cmd, opts)
		},
	}
	create.Flags().Int64Var(&opts.FamilyID, "family", 0, "family id (required)")
	_ = create.MarkFlagRequired("family")
	create.Flags().StringVar(&opts.Name, "name", "", "display name (required)")
	_ = create.MarkFlagRequired("name")
	create.Flags().StringVar(&opts.Role, "role", string(model.RoleMember), "owner, admin or member")

	roleOpts := &profileOptions{RootOptions: rootOpts}
	setRole := &cobra.Command{
		Use:   "set-role",
		Short: "Change a member's role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfileSetRole(cmd, roleOpts)
		},
	}
	setRole.Flags().Int64Var(&roleOpts.UserID, "user", 0, "user id (required)")
	_ = setRole.MarkFlagRequired("user")
	setRole.Flags().StringVar(&roleOpts.Role, "role", "", "owner, admin or member (required)")
	_ = setRole.MarkFlagRequired("role")

	cmd.AddCommand(create, setRole)
	return cmd
}

func runProfileSetRole(cmd *cobra.Command, opts *profileOptions) error {
	role, err := model.ParseRole(opts.Role)
	if err != nil {
		return wrapExitError(ExitCommandError, "invalid role", err)
	}
	db, err := opts.open()
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := store.NewProfileStore(db).UpdateRole(context.Background(), opts.UserID, role)
	if err != nil {
		return wrapExitError(ExitCommandError, "update profile", err)
	}
	if p == nil {
		return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("user %d not found", opts.UserID)}
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), p)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%d) is now %s\n", p.Name, p.UserID, p.Role)
	return nil
}

func runProfileCreate(cmd *cobra.Command, opts *profileOptions) error {
	role, err := model.ParseRole(opts.Role)
	if err != nil {
		return wrapExitError(ExitCommandError, "invalid role", err)
	}
	db, err := opts.open()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	f, err := store.NewFamilyStore(db).GetByID(ctx, opts.FamilyID)
	if err != nil {
		return wrapExitError(ExitCommandError, "load family", err)
	}
	if f == nil {
		return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("family %d not found", opts.FamilyID)}
	}

	p, err := store.NewProfileStore(db).Create(ctx, f.ID, opts.Name, role)
	if err != nil {
		return wrapExitError(ExitCommandError, "create profile", err)
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), p)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s %d (%s) in family %d\n", p.Role, p.UserID, p.Name, p.FamilyID)
	return nil
}
