package disc

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"slipstream/internal/discid"
	"slipstream/internal/iso9660"
	"slipstream/internal/logging"
)

// OpenPlan is the decision PlanOpen makes for a requested target.
type OpenPlan int

const (
	// OpenFresh opens the target; nothing is open.
	OpenFresh OpenPlan = iota
	// Reopen closes the current session and opens the new target.
	Reopen
	// AlreadyOpen refuses: the target is the one already open.
	AlreadyOpen
)

func (p OpenPlan) String() string {
	switch p {
	case OpenFresh:
		return "open_fresh"
	case Reopen:
		return "reopen"
	case AlreadyOpen:
		return "already_open"
	default:
		return fmt.Sprintf("OpenPlan(%d)", int(p))
	}
}

// PlanOpen decides how Drive.Open treats target given the current state.
func PlanOpen(isOpen bool, current, target string) OpenPlan {
	switch {
	case !isOpen:
		return OpenFresh
	case current == target:
		return AlreadyOpen
	default:
		return Reopen
	}
}

// OpenResult reports what Drive.Open did.
type OpenResult int

const (
	OpenedFresh OpenResult = iota
	Reopened
)

func (r OpenResult) String() string {
	if r == Reopened {
		return "reopened"
	}
	return "opened"
}

// Opener opens a Device for a target.
type Opener func(target string) (Device, error)

// DriveOptions configures a Drive.
type DriveOptions struct {
	Backend    Backend
	LockDir    string
	Identifier discid.Identifier
	Logger     *slog.Logger
	// Opener overrides backend selection. Nil uses OpenDevice.
	Opener Opener
}

// Drive holds at most one open Session and applies the reopen policy.
type Drive struct {
	mu         sync.Mutex
	session    *Session
	opener     Opener
	lockDir    string
	identifier discid.Identifier
	logger     *slog.Logger
}

// NewDrive constructs a Drive.
func NewDrive(opts DriveOptions) *Drive {
	logger := logging.NewComponentLogger(opts.Logger, "disc")
	opener := opts.Opener
	if opener == nil {
		backend := opts.Backend
		opener = func(target string) (Device, error) {
			return OpenDevice(backend, target, logger)
		}
	}
	identifier := opts.Identifier
	if identifier == nil {
		identifier = discid.WMC{}
	}
	return &Drive{
		opener:     opener,
		lockDir:    opts.LockDir,
		identifier: identifier,
		logger:     logger,
	}
}

// Open opens target, closing a different previously open target first.
// Opening the target that is already open fails with *DeviceOpenError.
func (d *Drive) Open(target string) (*Session, OpenResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := ""
	if d.session != nil {
		current = d.session.target
	}
	plan := PlanOpen(d.session != nil, current, target)
	d.logger.Debug("open requested",
		logging.String(logging.FieldTarget, target),
		logging.String("plan", plan.String()),
	)

	result := OpenedFresh
	switch plan {
	case AlreadyOpen:
		return nil, 0, &DeviceOpenError{Target: target, Reason: "already open in this session"}
	case Reopen:
		if err := d.session.Close(); err != nil {
			logging.WarnWithContext(d.logger, "closing previous session failed", "session_close_failed",
				logging.String(logging.FieldTarget, current),
				logging.Error(err),
				logging.String(logging.FieldImpact, "previous device handle may leak"),
			)
		}
		d.session = nil
		result = Reopened
	}

	session, err := d.openSession(target)
	if err != nil {
		return nil, 0, err
	}
	d.session = session
	return session, result, nil
}

// Session returns the open session, or nil.
func (d *Drive) Session() *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

// Close releases the open session, if any.
func (d *Drive) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil
	}
	err := d.session.Close()
	d.session = nil
	return err
}

func (d *Drive) openSession(target string) (*Session, error) {
	lock, err := d.acquireLock(target)
	if err != nil {
		return nil, err
	}

	dev, err := d.opener(target)
	if err != nil {
		releaseLock(lock)
		var openErr *DeviceOpenError
		if errors.As(err, &openErr) || errors.Is(err, ErrBackendUnavailable) {
			return nil, err
		}
		return nil, &DeviceOpenError{Target: target, Err: err}
	}

	pvd, err := iso9660.ReadVolumeDescriptor(dev)
	if err == nil {
		_, err = pvd.ByteSize()
	}
	if err != nil {
		dev.Close()
		releaseLock(lock)
		return nil, fmt.Errorf("open %s: %w", target, err)
	}
	if blocks, over := exceedsCapacity(dev, pvd.SectorCount); over {
		logging.WarnWithContext(d.logger, "volume larger than medium", "volume_capacity_mismatch",
			logging.String(logging.FieldTarget, target),
			logging.Int(logging.FieldSectors, pvd.SectorCount),
			logging.Int("medium_blocks", blocks),
			logging.String(logging.FieldImpact, "reads past the end of the medium will fail"),
		)
	}

	s := &Session{
		target:     target,
		dev:        dev,
		pvd:        pvd,
		fs:         iso9660.NewFileSystem(dev, pvd),
		reader:     NewStreamReader(dev, pvd.SectorCount),
		scrambled:  dev.IsScrambled(),
		lock:       lock,
		identifier: d.identifier,
		logger:     d.logger.With(logging.String(logging.FieldTarget, target)),
	}
	s.logger.Info("disc opened",
		logging.String(logging.FieldEventType, "disc_opened"),
		logging.String("volume_id", pvd.VolumeID),
		logging.Int(logging.FieldSectors, pvd.SectorCount),
		logging.Bool("scrambled", s.scrambled),
	)
	return s, nil
}

func (d *Drive) acquireLock(target string) (*flock.Flock, error) {
	if strings.TrimSpace(d.lockDir) == "" {
		return nil, nil
	}
	if err := os.MkdirAll(d.lockDir, 0o755); err != nil {
		return nil, &DeviceOpenError{Target: target, Reason: "create lock directory", Err: err}
	}
	lock := flock.New(filepath.Join(d.lockDir, LockName(target)))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, &DeviceOpenError{Target: target, Reason: "acquire lock", Err: err}
	}
	if !ok {
		return nil, &DeviceOpenError{Target: target, Reason: "in use by another process"}
	}
	return lock, nil
}

func releaseLock(lock *flock.Flock) {
	if lock != nil {
		_ = lock.Unlock()
	}
}

// LockName maps a target to its lock file name.
func LockName(target string) string {
	name := strings.Trim(target, "/")
	name = strings.NewReplacer("/", "_", ":", "_", "\\", "_").Replace(name)
	if name == "" {
		name = "device"
	}
	return name + ".lock"
}

// Session is one opened target. Calls on a Session must be serialized.
type Session struct {
	target     string
	dev        Device
	pvd        iso9660.VolumeDescriptor
	fs         *iso9660.FileSystem
	reader     *StreamReader
	scrambled  bool
	lock       *flock.Flock
	identifier discid.Identifier
	logger     *slog.Logger
	closed     bool
}

// Target is the device path or selector this session was opened with.
func (s *Session) Target() string {
	return s.target
}

// VolumeDescriptor returns the primary volume descriptor read at open time.
func (s *Session) VolumeDescriptor() iso9660.VolumeDescriptor {
	return s.pvd
}

// FileSystem exposes the directory walker over the device.
func (s *Session) FileSystem() *iso9660.FileSystem {
	return s.fs
}

// IsScrambled reports the CSS state queried when the session opened.
func (s *Session) IsScrambled() bool {
	return s.scrambled
}

// CrackTitleKeys establishes the key of every VOB file and installs the
// resulting title ranges into the reader. The reader's cursor is left where
// the key seeks left the device.
func (s *Session) CrackTitleKeys() ([]TitleRange, error) {
	ranges, pos, err := ComputeTitleRanges(s.fs, s.dev, true)
	if pos >= 0 {
		s.reader.SetPosition(pos)
	}
	if err != nil {
		return nil, err
	}
	s.reader.SetTitles(ranges)
	s.logger.Debug("title keys established", logging.Int("titles", len(ranges)))
	return ranges, nil
}

// TitleRanges lists VOB extents without seeking or installing them.
func (s *Session) TitleRanges() ([]TitleRange, error) {
	ranges, _, err := ComputeTitleRanges(s.fs, s.dev, false)
	return ranges, err
}

// Read reads a run of sectors. See StreamReader.Read.
func (s *Session) Read(first, requested int) (int, []byte, error) {
	return s.reader.Read(first, requested)
}

// ComputeCRCID returns the disc id from the configured Identifier.
func (s *Session) ComputeCRCID() (discid.ID, error) {
	return s.identifier.Compute(s.dev)
}

// Close releases the device and the target lock and resets the cursor.
// Closing twice is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.reader.Reset()
	err := s.dev.Close()
	releaseLock(s.lock)
	s.logger.Debug("disc closed")
	return err
}

// capacityReporter is implemented by devices that know the medium's size.
type capacityReporter interface {
	Capacity() int
}

// exceedsCapacity returns the medium's block count and whether a volume of
// sectorCount sectors claims more than the medium holds.
func exceedsCapacity(dev Device, sectorCount int) (int, bool) {
	cr, ok := dev.(capacityReporter)
	if !ok {
		return 0, false
	}
	blocks := cr.Capacity()
	return blocks, blocks > 0 && sectorCount > blocks
}
