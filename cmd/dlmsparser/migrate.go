package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/database"
)

func newMigrateCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Manage the schema of the configured database. "serve" and the history
commands migrate up on their own; these commands are for inspection and
rolling back a release.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withDatabase(cmd, func(ctx context.Context, db *database.DB) error {
					applied, pending, err := db.GetMigrationStatus(ctx)
					if err != nil {
						return fmt.Errorf("reading migration status: %w", err)
					}
					return writeMigrationTable(cmd.OutOrStdout(), applied, pending)
				})
			},
		},
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withDatabase(cmd, func(ctx context.Context, db *database.DB) error {
					if err := db.Migrate(ctx); err != nil {
						return fmt.Errorf("running migrations: %w", err)
					}
					_, err := fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert the newest applied migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withDatabase(cmd, func(ctx context.Context, db *database.DB) error {
					applied, _, err := db.GetMigrationStatus(ctx)
					if err != nil {
						return fmt.Errorf("reading migration status: %w", err)
					}
					if len(applied) == 0 {
						_, err = fmt.Fprintln(cmd.OutOrStdout(), "nothing to revert")
						return err
					}
					if err := db.MigrateDown(ctx); err != nil {
						return fmt.Errorf("reverting migration: %w", err)
					}
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "reverted %s\n", applied[len(applied)-1].Version)
					return err
				})
			},
		},
	)
	return cmd
}

// withDatabase opens the configured database for the duration of fn.
func (o *cliOptions) withDatabase(cmd *cobra.Command, fn func(ctx context.Context, db *database.DB) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // best-effort close on exit

	return fn(cmd.Context(), db)
}

func writeMigrationTable(w io.Writer, applied []database.MigrationRecord, pending []database.Migration) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED")
	for _, r := range applied {
		fmt.Fprintf(tw, "%s\tapplied\t%s\n", r.Version, r.AppliedAt.Local().Format(time.DateTime))
	}
	for _, m := range pending {
		fmt.Fprintf(tw, "%s\tpending\t-\n", m.Version)
	}
	return tw.Flush()
}
