package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"slipstream/internal/disc"
)

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List optical drives and the discs loaded in them",
		RunE: func(cmd *cobra.Command, args []string) error {
			drives, err := disc.ListDrives(cmd.Context())
			if err != nil {
				return fmt.Errorf("list drives: %w", err)
			}
			if ctx.JSONMode() {
				if drives == nil {
					drives = []disc.DriveInfo{}
				}
				return writeJSON(cmd, drives)
			}

			out := cmd.OutOrStdout()
			if len(drives) == 0 {
				fmt.Fprintln(out, "No optical drives found")
				return nil
			}
			rows := make([][]string, 0, len(drives))
			for _, d := range drives {
				title := d.Title
				if d.Generic && title != "" {
					title += " (generic label)"
				}
				rows = append(rows, []string{
					d.Path,
					strings.TrimSpace(d.Vendor + " " + d.Model),
					d.StatusID,
					d.VolumeID,
					title,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]column{textCol("Device"), textCol("Drive"), textCol("Status"), textCol("Label"), textCol("Title")},
				rows,
			))
			return nil
		},
	}
}
