package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"slipstream/internal/disc"
	"slipstream/internal/discid"
	"slipstream/internal/history"
	"slipstream/internal/iso9660"
	"slipstream/internal/logging"
)

// DefaultBlockSectors is the number of sectors requested per read.
const DefaultBlockSectors = 64

// ErrCancelled reports a backup stopped through its context.
var ErrCancelled = errors.New("backup cancelled")

// Source is an opened disc. *disc.Session satisfies it.
type Source interface {
	Target() string
	VolumeDescriptor() iso9660.VolumeDescriptor
	IsScrambled() bool
	CrackTitleKeys() ([]disc.TitleRange, error)
	Read(first, requested int) (int, []byte, error)
	ComputeCRCID() (discid.ID, error)
}

// ProgressSink receives a completion percentage after every block.
type ProgressSink func(percent float64)

// Recorder persists the outcome of a backup. *history.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, entry history.Entry) error
}

// Orchestrator copies a Source into an image file.
type Orchestrator struct {
	Fs           afero.Fs
	Logger       *slog.Logger
	BlockSectors int
	Recorder     Recorder

	// OnState observes every state transition.
	OnState func(State)
}

// Result describes a finished backup.
type Result struct {
	SessionID  string        `json:"session_id"`
	VolumeID   string        `json:"volume_id"`
	DiscID     string        `json:"disc_id,omitempty"`
	OutputPath string        `json:"output_path"`
	Sectors    int           `json:"sectors"`
	Scrambled  bool          `json:"scrambled"`
	Titles     int           `json:"titles"`
	Duration   time.Duration `json:"duration"`
}

// run carries the per-backup state threaded through the stages.
type run struct {
	o       *Orchestrator
	ctx     context.Context
	src     Source
	sink    ProgressSink
	logger  *slog.Logger
	result  Result
	state   State
	started time.Time
}

// Run backs up src into outputDir. On failure the temporary file is kept
// and the error is returned as produced by the failing step.
func (o *Orchestrator) Run(ctx context.Context, src Source, outputDir string, sink ProgressSink) (Result, error) {
	r := &run{
		o:       o,
		src:     src,
		sink:    sink,
		started: time.Now(),
		result: Result{
			SessionID: uuid.NewString(),
			Scrambled: src.IsScrambled(),
		},
	}
	ctx = logging.WithSessionID(ctx, r.result.SessionID)
	ctx = logging.WithTarget(ctx, src.Target())
	r.ctx = ctx
	r.logger = logging.WithContext(ctx, logging.NewComponentLogger(o.Logger, "backup"))

	err := r.execute(outputDir)
	r.result.Duration = time.Since(r.started)
	if err != nil {
		r.transition(StateFailed)
		logging.ErrorWithContext(r.logger, "backup failed", "backup_failed",
			logging.String("category", disc.Classify(err)),
			logging.String(logging.FieldErrorHint, failureHint(err)),
			logging.Error(err),
		)
	} else {
		r.transition(StateDone)
		r.logger.Info("backup complete",
			logging.String(logging.FieldEventType, "backup_complete"),
			logging.String("output", r.result.OutputPath),
			logging.Int(logging.FieldSectors, r.result.Sectors),
			logging.Int64("bytes", int64(r.result.Sectors)*disc.SectorSize),
			logging.Duration("duration", r.result.Duration),
		)
	}
	r.record(err)
	return r.result, err
}

func (r *run) execute(outputDir string) error {
	r.transition(StatePreparing)
	pvd := r.src.VolumeDescriptor()
	if _, err := pvd.ByteSize(); err != nil {
		return err
	}
	r.result.VolumeID = pvd.VolumeID
	if id, err := r.src.ComputeCRCID(); err != nil {
		logging.WarnWithContext(r.logger, "disc id unavailable", "disc_id_failed",
			logging.String(logging.FieldImpact, "history entry will not carry a disc id"),
			logging.Error(err),
		)
	} else {
		r.result.DiscID = id.String()
	}

	fs := r.o.fs()
	if err := fs.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	finalPath, tempPath := OutputPaths(outputDir, pvd.VolumeID)
	out, err := fs.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", tempPath, err)
	}
	closed := false
	defer func() {
		if !closed {
			_ = out.Close()
		}
	}()
	r.logger.Info("backup started",
		logging.String(logging.FieldEventType, "backup_start"),
		logging.String("volume_id", pvd.VolumeID),
		logging.Int(logging.FieldSectors, pvd.SectorCount),
		logging.Bool("scrambled", r.result.Scrambled),
		logging.String("temp_path", tempPath),
	)

	if r.result.Scrambled {
		r.transition(StateKeyCracking)
		ranges, err := r.src.CrackTitleKeys()
		if err != nil {
			return err
		}
		if len(ranges) == 0 {
			return disc.Wrap(disc.ErrNoKeysObtained, "key cracking", "scrambled disc has no title files", nil)
		}
		r.result.Titles = len(ranges)
	}

	r.transition(StateStreaming)
	sectors, err := r.stream(out, pvd.SectorCount)
	r.result.Sectors = sectors
	if err != nil {
		return err
	}

	r.transition(StateFinalizing)
	if err := out.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tempPath, err)
	}
	closed = true
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tempPath, err)
	}
	if err := fs.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("finalize %s: %w", finalPath, err)
	}
	r.result.OutputPath = finalPath
	return nil
}

// stream copies sectors 0..sectorCount-1 and returns how many were written.
func (r *run) stream(out afero.File, sectorCount int) (int, error) {
	block := r.o.blockSectors()
	sampler := logging.NewProgressSampler(10)
	cur, last := 0, sectorCount-1
	for cur <= last {
		if err := r.ctx.Err(); err != nil {
			return cur, fmt.Errorf("%w at sector %d: %w", ErrCancelled, cur, err)
		}
		requested := min(block, last-cur+1)
		actual, data, err := r.src.Read(cur, requested)
		if err != nil {
			return cur, err
		}
		if _, err := out.Write(data); err != nil {
			return cur, fmt.Errorf("write sectors %d-%d: %w", cur, cur+actual-1, err)
		}
		cur += actual
		percent := progressPercent(cur, last)
		if r.sink != nil {
			r.sink(percent)
		}
		if sampler.ShouldLog(percent, StateStreaming.String()) {
			r.logger.Debug("backup progress",
				logging.Float64("percent", percent),
				logging.Int(logging.FieldLBA, cur),
			)
		}
		if actual < requested {
			logging.WarnWithContext(r.logger, "short read ended stream", "short_read",
				logging.Int(logging.FieldLBA, cur),
				logging.Int("requested", requested),
				logging.Int("actual", actual),
				logging.String(logging.FieldImpact, "image is shorter than the volume descriptor states"),
				logging.String(logging.FieldErrorHint, "verify the image or clean the disc and retry"),
			)
			break
		}
	}
	return cur, nil
}

func progressPercent(cur, last int) float64 {
	if last <= 0 {
		return 100
	}
	return min(float64(cur)/float64(last)*100, 100)
}

func (r *run) transition(next State) {
	if r.state == next {
		return
	}
	r.logger.Info("backup stage",
		logging.String(logging.FieldEventType, "stage_transition"),
		logging.String("from", r.state.String()),
		logging.String(logging.FieldStage, next.String()),
	)
	r.state = next
	if r.o.OnState != nil {
		r.o.OnState(next)
	}
}

func (r *run) record(runErr error) {
	if r.o.Recorder == nil {
		return
	}
	entry := history.Entry{
		SessionID:  r.result.SessionID,
		Target:     r.src.Target(),
		VolumeID:   r.result.VolumeID,
		DiscID:     r.result.DiscID,
		OutputPath: r.result.OutputPath,
		Sectors:    r.result.Sectors,
		Scrambled:  r.result.Scrambled,
		Titles:     r.result.Titles,
		Status:     history.StatusDone,
		StartedAt:  r.started,
		FinishedAt: r.started.Add(r.result.Duration),
	}
	if runErr != nil {
		entry.Status = history.StatusFailed
		if errors.Is(runErr, ErrCancelled) {
			entry.Status = history.StatusCancelled
		}
		entry.ErrorCategory = disc.Classify(runErr)
		entry.ErrorMessage = runErr.Error()
	}
	if err := r.o.Recorder.Record(context.WithoutCancel(r.ctx), entry); err != nil {
		logging.WarnWithContext(r.logger, "history record failed", "history_record_failed",
			logging.String(logging.FieldImpact, "backup outcome missing from history"),
			logging.Error(err),
		)
	}
}

func (o *Orchestrator) fs() afero.Fs {
	if o.Fs == nil {
		return afero.NewOsFs()
	}
	return o.Fs
}

func (o *Orchestrator) blockSectors() int {
	if o.BlockSectors <= 0 {
		return DefaultBlockSectors
	}
	return o.BlockSectors
}

func failureHint(err error) string {
	switch disc.Classify(err) {
	case disc.CategoryCancelled:
		return "rerun the backup to start over"
	case disc.CategoryProtection:
		return "build with -tags dvdcss and install libdvdcss"
	case disc.CategoryBadMedia:
		return "clean the disc or try another drive"
	case disc.CategoryFilesystem:
		return "disc is not ISO-9660 or is damaged"
	case disc.CategoryUnavailable:
		return "check the device path and permissions"
	default:
		return "check logs for details"
	}
}
