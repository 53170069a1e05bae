package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"slipstream/internal/disc"
)

func newBackupCommand(ctx *commandContext) *cobra.Command {
	var opts backupOptions

	cmd := &cobra.Command{
		Use:   "backup [target]",
		Short: "Write a decrypted ISO image of the disc",
		Long: `Write a decrypted ISO image of the disc.

The image is streamed to <VOLUME_ID>.ISO.tmp in the output directory and
renamed once every sector has been written. Press Ctrl-C to stop; the
partial .tmp file is left in place.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := ctx.resolveTarget(args)
			if err != nil {
				return err
			}
			runner, err := ctx.newBackupRunner(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case ctx.JSONMode():
			case isTerminal(out):
				runner.progress = barProgress(out)
			default:
				runner.progress = lineProgress(out)
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			result, err := runner.run(signalCtx, target, opts)
			if err != nil {
				if category := disc.Classify(err); category == disc.CategoryCancelled {
					fmt.Fprintln(cmd.ErrOrStderr(), "Backup cancelled; partial image kept as .tmp")
				}
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, result)
			}
			fmt.Fprintf(out, "Wrote %s (%s, %d sectors) in %s\n",
				result.OutputPath,
				humanize.IBytes(uint64(result.Sectors)*disc.SectorSize),
				result.Sectors,
				result.Duration.Round(10*time.Millisecond),
			)
			if result.Scrambled {
				fmt.Fprintf(out, "Decrypted %d title files\n", result.Titles)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "Output directory (defaults to paths.output_dir)")
	cmd.Flags().BoolVar(&opts.eject, "eject", false, "Eject the disc after a successful backup")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "Do not record this backup in history")
	cmd.Flags().IntVar(&opts.blockSectors, "block-sectors", 0, "Sectors per read (defaults to device.block_sectors)")
	return cmd
}
