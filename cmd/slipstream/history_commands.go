package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"slipstream/internal/disc"
	"slipstream/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and manage the backup history",
	}

	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryTargetsCommand(ctx))
	historyCmd.AddCommand(newHistoryClearCommand(ctx))

	return historyCmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded backups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				if entries == nil {
					entries = []history.Entry{}
				}
				return writeJSON(cmd, entries)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "History: empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				detail := e.OutputPath
				if e.Status != history.StatusDone {
					detail = e.ErrorCategory
				}
				rows = append(rows, []string{
					e.StartedAt.Local().Format("2006-01-02 15:04"),
					disc.DisplayTitle(e.VolumeID),
					string(e.Status),
					humanize.IBytes(uint64(e.Sectors) * disc.SectorSize),
					e.Duration().Round(time.Second).String(),
					yesNo(e.Scrambled),
					detail,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]column{
					textCol("Started"), textCol("Title"), textCol("Status"), numCol("Size"),
					numCol("Duration"), textCol("CSS"), textCol("Output / Failure"),
				},
				rows,
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show (0 for all)")
	return cmd
}

func newHistoryTargetsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List recently used drives and output directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			targets, err := store.RecentTargets(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				if targets == nil {
					targets = []history.RecentTarget{}
				}
				return writeJSON(cmd, targets)
			}

			out := cmd.OutOrStdout()
			if len(targets) == 0 {
				fmt.Fprintln(out, "No recent targets")
				return nil
			}
			if last, err := store.LastOutputDir(cmd.Context()); err == nil && last != "" {
				fmt.Fprintf(out, "Last output directory: %s\n", last)
			}
			rows := make([][]string, 0, len(targets))
			for i, t := range targets {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					t.Target,
					t.OutputDir,
					humanize.Time(t.LastUsed),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]column{numCol("#"), textCol("Target"), textCol("Output Directory"), textCol("Last Used")},
				rows,
			))
			return nil
		},
	}
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove failed entries (or everything with --all)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			var removed int64
			if all {
				removed, err = store.Clear(cmd.Context())
			} else {
				removed, err = store.ClearFailed(cmd.Context())
			}
			if err != nil {
				return err
			}
			noun := "entries"
			if removed == 1 {
				noun = "entry"
			}
			if !all {
				noun = "failed " + noun
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s\n", removed, noun)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Remove every entry and recent target")
	return cmd
}
