package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Terminal3D/DLMS-Parser/internal/history"
)

const defaultListLimit = 20

func newHistoryCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and manage the parse history",
		Long: `Inspect and manage the parse history stored in the configured database.
Entries are written by the API, MQTT ingest and the parse/batch commands.`,
	}

	cmd.AddCommand(
		newHistoryListCmd(opts),
		newHistoryShowCmd(opts),
		newHistoryDeleteCmd(opts),
		newHistoryClearCmd(opts),
		newHistoryPruneCmd(opts),
	)
	return cmd
}

// withHistory opens the history repository for the duration of fn.
func (o *cliOptions) withHistory(cmd *cobra.Command, fn func(ctx context.Context, repo history.Repository) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return errHistoryDisabled
	}

	repo, closeDB, err := openHistory(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	return fn(cmd.Context(), repo)
}

func newHistoryListCmd(opts *cliOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the newest history entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("invalid limit %d", limit)
			}
			return opts.withHistory(cmd, func(ctx context.Context, repo history.Repository) error {
				entries, err := repo.List(ctx, limit)
				if err != nil {
					return fmt.Errorf("listing history: %w", err)
				}
				return writeHistoryTable(cmd.OutOrStdout(), entries)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultListLimit, "maximum number of entries")
	return cmd
}

func newHistoryShowCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Print one history entry as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withHistory(cmd, func(ctx context.Context, repo history.Repository) error {
				entry, err := repo.Get(ctx, args[0])
				if err != nil {
					return historyError(args[0], err)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entry)
			})
		},
	}
}

func newHistoryDeleteCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete one history entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withHistory(cmd, func(ctx context.Context, repo history.Repository) error {
				if err := repo.Delete(ctx, args[0]); err != nil {
					return historyError(args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newHistoryClearCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every history entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withHistory(cmd, func(ctx context.Context, repo history.Repository) error {
				n, err := repo.Clear(ctx)
				if err != nil {
					return fmt.Errorf("clearing history: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d entries\n", n)
				return nil
			})
		},
	}
}

func newHistoryPruneCmd(opts *cliOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete entries older than a given age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return opts.withHistory(cmd, func(ctx context.Context, repo history.Repository) error {
				n, err := repo.Prune(ctx, olderThan)
				if err != nil {
					return fmt.Errorf("pruning history: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d entries\n", n)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "minimum age of entries to delete")
	return cmd
}

// historyError maps ErrNotFound to a readable message.
func historyError(id string, err error) error {
	if errors.Is(err, history.ErrNotFound) {
		return fmt.Errorf("history entry %s not found", id)
	}
	return fmt.Errorf("history entry %s: %w", id, err)
}

// writeHistoryTable prints entries as an aligned table, newest first.
func writeHistoryTable(w io.Writer, entries []history.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSOURCE\tMESSAGES\tRESULT")
	for _, e := range entries {
		result := "ok"
		if !e.Success {
			result = e.ErrorMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			e.ID,
			e.CreatedAt.Local().Format(time.DateTime),
			e.Source,
			len(e.Messages),
			result,
		)
	}
	return tw.Flush()
}
