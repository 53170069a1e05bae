package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"slipstream/internal/disc"
	"slipstream/internal/logging"
	"slipstream/internal/watch"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var opts backupOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Back up every disc inserted into the watched drive",
		Long: `Back up every disc inserted into the watched drive.

Listens for udev media-change events on watch.device (or
device.default_target) and runs a backup when a disc is loaded. Set
backup.eject_after or pass --eject to open the tray when each backup
finishes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			runner, err := ctx.newBackupRunner(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			runner.progress = lineProgress(cmd.OutOrStdout())

			handler := func(hctx context.Context, device string) error {
				if _, err := disc.WaitForReady(hctx, device); err != nil {
					return fmt.Errorf("wait for %s: %w", device, err)
				}
				result, err := runner.run(hctx, device, opts)
				if err != nil {
					return err
				}
				logger.Info("watch backup complete",
					logging.String(logging.FieldEventType, "watch_backup_complete"),
					logging.String("output", result.OutputPath),
				)
				return nil
			}
			monitor, err := watch.New(cfg, logger, handler)
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for discs (Ctrl-C to stop)\n", monitor.Device())
			g, gctx := errgroup.WithContext(signalCtx)
			g.Go(func() error {
				return monitor.Run(gctx)
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "Output directory (defaults to paths.output_dir)")
	cmd.Flags().BoolVar(&opts.eject, "eject", false, "Eject each disc after a successful backup")
	return cmd
}
