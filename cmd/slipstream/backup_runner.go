package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"slipstream/internal/backup"
	"slipstream/internal/config"
	"slipstream/internal/disc"
	"slipstream/internal/history"
	"slipstream/internal/logging"
	"slipstream/internal/notifications"
	"slipstream/internal/preflight"
)

type backupOptions struct {
	outputDir    string
	eject        bool
	noHistory    bool
	blockSectors int
}

// backupRunner performs one backup for the backup and watch commands.
type backupRunner struct {
	cfg    *config.Config
	logger *slog.Logger
	newDrv func() (*disc.Drive, error)
	out    io.Writer
	// progress renders a running job; nil drains it silently.
	progress func(ctx context.Context, job *backup.Job, label string) error
	ejector  disc.Ejector
	notifier notifications.Service
}

func (c *commandContext) newBackupRunner(out io.Writer) (*backupRunner, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return &backupRunner{
		cfg:      cfg,
		logger:   logger,
		newDrv:   c.newDrive,
		out:      out,
		ejector:  disc.NewEjector(),
		notifier: notifications.NewService(cfg),
	}, nil
}

func (r *backupRunner) run(ctx context.Context, target string, opts backupOptions) (backup.Result, error) {
	outputDir := strings.TrimSpace(opts.outputDir)
	if outputDir == "" {
		outputDir = r.cfg.Paths.OutputDir
	}
	outputDir, err := config.ExpandPath(outputDir)
	if err != nil {
		return backup.Result{}, err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return backup.Result{}, fmt.Errorf("create output directory: %w", err)
	}
	if err := preflight.Err(preflight.RunAll(preflight.Request{Target: target, OutputDir: outputDir})); err != nil {
		return backup.Result{}, err
	}

	drive, err := r.newDrv()
	if err != nil {
		return backup.Result{}, err
	}
	defer drive.Close()
	session, _, err := drive.Open(target)
	if err != nil {
		return backup.Result{}, describeFailure(err)
	}
	if size, err := session.VolumeDescriptor().ByteSize(); err == nil {
		if check := preflight.CheckFreeSpace("Free space", outputDir, int64(size)); !check.Passed {
			return backup.Result{}, preflight.Err([]preflight.Result{check})
		}
	}

	var store *history.Store
	if r.cfg.Backup.RecordHistory && !opts.noHistory {
		store, err = history.Open(r.cfg.HistoryPath())
		if err != nil {
			logging.WarnWithContext(r.logger, "history unavailable", "history_open_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "this backup will not be recorded"),
			)
		} else {
			defer store.Close()
		}
	}

	blockSectors := opts.blockSectors
	if blockSectors <= 0 {
		blockSectors = r.cfg.Device.BlockSectors
	}
	orchestrator := &backup.Orchestrator{
		Fs:           afero.NewOsFs(),
		Logger:       r.logger,
		BlockSectors: blockSectors,
	}
	if store != nil {
		orchestrator.Recorder = store
	}

	label := disc.DisplayTitle(session.VolumeDescriptor().VolumeID)
	r.notify(ctx, "backup_started", func(ctx context.Context) error {
		return r.notifier.NotifyBackupStarted(ctx, label, target)
	})
	job := backup.Start(ctx, orchestrator, session, outputDir)

	var result backup.Result
	var runErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if r.progress == nil {
			for range job.Progress() {
			}
			return nil
		}
		return r.progress(gctx, job, label)
	})
	g.Go(func() error {
		result, runErr = job.Wait()
		return nil
	})
	if err := g.Wait(); err != nil {
		return result, err
	}
	if runErr != nil {
		r.notify(ctx, "backup_failed", func(ctx context.Context) error {
			return r.notifier.NotifyBackupFailed(ctx, label, disc.Classify(runErr), runErr)
		})
		return result, describeFailure(runErr)
	}
	r.notify(ctx, "backup_completed", func(ctx context.Context) error {
		return r.notifier.NotifyBackupCompleted(ctx, notifications.Summary{
			Title:      label,
			OutputPath: result.OutputPath,
			Bytes:      int64(result.Sectors) * disc.SectorSize,
			Duration:   result.Duration,
			Scrambled:  result.Scrambled,
		})
	})

	if store != nil {
		if err := store.TouchTarget(context.WithoutCancel(ctx), target, outputDir); err != nil {
			r.logger.Debug("recent target not saved", logging.Error(err))
		}
	}
	if opts.eject || r.cfg.Backup.EjectAfter {
		if err := drive.Close(); err != nil {
			r.logger.Debug("drive close before eject", logging.Error(err))
		}
		if err := r.ejector.Eject(ctx, target); err != nil && !errors.Is(err, context.Canceled) {
			logging.WarnWithContext(r.logger, "eject failed", "eject_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "disc remains in the drive"),
			)
		}
	}
	return result, nil
}

// notify delivers a notification even after ctx is cancelled. Failures are
// logged and never fail the backup.
func (r *backupRunner) notify(ctx context.Context, event string, send func(context.Context) error) {
	if r.notifier == nil {
		return
	}
	if err := send(context.WithoutCancel(ctx)); err != nil {
		logging.WarnWithContext(r.logger, "notification failed", "notification_failed",
			logging.Error(err),
			logging.String("event", event),
			logging.String(logging.FieldImpact, "backup result is unaffected"),
		)
	}
}
