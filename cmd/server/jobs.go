package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warp/violation-sync/api"
	"github.com/warp/violation-sync/violations"
)

// NewSweepCommand creates the one-shot sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation sweep",
		Long: `Fetch the current snapshot, reconcile it with the stored case records
and print {matched, created, updated, errors} as JSON. Exits non-zero when
the sweep fails as a whole or another sweep holds the lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			a, err := newApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.runner.Run(ctx, api.TriggerCLI)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), run.Result)
		},
	}
}

// QueueOptions holds flags for the queue command.
type QueueOptions struct {
	*RootOptions
	Drain int
	JSON  bool
}

// NewQueueCommand creates the queue command.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show the enrichment queue, or drain its head",
		Long: `Without --drain, print the enrichment queue in dispatch order.
With --drain N, dispatch the first N records and wait for the dispatches
to return.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			a, err := newApp(ctx, opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.Close()

			if opts.Drain > 0 {
				result, err := a.drainer.Drain(ctx, opts.Drain)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			}

			items, err := a.drainer.Queue(ctx)
			if err != nil {
				return err
			}
			if opts.JSON {
				return printJSON(cmd.OutOrStdout(), items)
			}
			return printQueue(cmd.OutOrStdout(), items)
		},
	}

	cmd.Flags().IntVar(&opts.Drain, "drain", 0, "dispatch the first N queued records")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the queue as JSON")

	return cmd
}

// NewMigrateOrphansCommand creates the migrate-orphans command.
func NewMigrateOrphansCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-orphans",
		Short: "Flag records with a narrative but no enrichment status as complete",
		Long: `One-time cleanup for records enriched before the status flag existed.
Migrated records missing a plate or identifier are then queued for repair.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			a, err := newApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			migrated, err := violations.MigrateOrphans(ctx, a.store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d records\n", migrated)
			return nil
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printQueue(w io.Writer, items []violations.QueueItem) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "Queue is empty")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tREFERENCE\tHEARING\tREASON\tMISSING")
	for i, item := range items {
		hearing := "-"
		if item.Record.HearingDate != nil {
			hearing = item.Record.HearingDate.Format("2006-01-02")
		}
		missing := "-"
		if len(item.Missing) > 0 {
			missing = fmt.Sprint(item.Missing)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, item.Record.ReferenceNumber, hearing, item.Reason, missing)
	}
	return tw.Flush()
}
