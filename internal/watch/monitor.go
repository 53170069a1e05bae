package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pilebones/go-udev/netlink"

	"slipstream/internal/config"
	"slipstream/internal/logging"
)

// ErrNoDevice reports that no drive is configured for watching.
var ErrNoDevice = errors.New("no watch device configured")

// Handler reacts to media arriving in device.
type Handler func(ctx context.Context, device string) error

// Monitor listens for disc insertions on one device.
type Monitor struct {
	logger  *slog.Logger
	handler Handler
	device  string
	aliases map[string]struct{}

	busy     atomic.Bool
	inflight sync.WaitGroup

	mu       sync.Mutex
	conn     *netlink.UEventConn
	quit     chan struct{}
	loopDone chan struct{}
	running  bool
}

// New creates a monitor for the configured watch device.
func New(cfg *config.Config, logger *slog.Logger, handler Handler) (*Monitor, error) {
	if cfg == nil {
		return nil, ErrNoDevice
	}
	device := strings.TrimSpace(cfg.WatchDevice())
	if device == "" {
		return nil, ErrNoDevice
	}
	m := &Monitor{
		logger:  logging.NewComponentLogger(logger, "watch"),
		handler: handler,
		device:  device,
		aliases: map[string]struct{}{device: {}},
	}
	if resolved, err := filepath.EvalSymlinks(device); err == nil {
		m.aliases[resolved] = struct{}{}
	}
	return m, nil
}

// Device is the configured device path.
func (m *Monitor) Device() string {
	return m.device
}

// Start begins listening for udev netlink events.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return fmt.Errorf("connect netlink socket: %w", err)
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.loopDone = make(chan struct{})
	m.running = true

	go m.monitorLoop(ctx, conn, m.quit, m.loopDone)

	m.logger.Info("watch started",
		logging.String(logging.FieldEventType, "watch_started"),
		logging.String(logging.FieldTarget, m.device),
	)
	return nil
}

// Stop shuts down the monitor and waits for the event loop and any running
// handler to return.
func (m *Monitor) Stop() {
	m.mu.Lock()
	done := m.loopDone
	if m.running {
		close(m.quit)
		m.quit = nil
		if m.conn != nil {
			_ = m.conn.Close()
			m.conn = nil
		}
		m.loopDone = nil
		m.running = false
		m.logger.Info("watch stopped", logging.String(logging.FieldEventType, "watch_stopped"))
	}
	m.mu.Unlock()

	// The loop may be mid-dispatch; only after it exits is inflight final.
	if done != nil {
		<-done
	}
	m.inflight.Wait()
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Run starts the monitor and blocks until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	m.Stop()
	return nil
}

func (m *Monitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}, done chan<- struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())
	defer close(monitorQuit)

	m.dispatch(ctx, queue, errs, quit, done)
}

// dispatch handles events until ctx is done or quit is closed, then closes done.
func (m *Monitor) dispatch(ctx context.Context, queue <-chan netlink.UEvent, errs <-chan error, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case uevent := <-queue:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "watch_netlink_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "disc insertions may be missed"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=block, ID_CDROM=1, ID_CDROM_MEDIA=1, ACTION=change|add.
func buildMatcher() netlink.Matcher {
	action := "change|add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM":      "block",
			"ID_CDROM":       "1",
			"ID_CDROM_MEDIA": "1",
		},
	})
	return rules
}

// handleEvent dispatches a matched uevent. It reports whether a handler was started.
func (m *Monitor) handleEvent(ctx context.Context, uevent netlink.UEvent) bool {
	devname := extractDeviceName(uevent)
	if devname == "" {
		m.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return false
	}
	if _, ok := m.aliases[devname]; !ok {
		m.logger.Debug("ignoring event for other device",
			logging.String("device", devname),
			logging.String(logging.FieldTarget, m.device),
		)
		return false
	}
	if m.handler == nil {
		return false
	}
	if !m.busy.CompareAndSwap(false, true) {
		m.logger.Info("disc event ignored, backup in progress",
			logging.String(logging.FieldEventType, "watch_busy"),
			logging.String("device", devname),
		)
		return false
	}

	m.logger.Info("disc media detected",
		logging.String(logging.FieldEventType, "watch_disc_detected"),
		logging.String("device", devname),
		logging.String("action", string(uevent.Action)),
	)
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		defer m.busy.Store(false)
		if err := m.handler(ctx, m.device); err != nil {
			logging.WarnWithContext(m.logger, "disc handler failed", "watch_handler_failed",
				logging.Error(err),
				logging.String("device", devname),
				logging.String(logging.FieldImpact, "disc was not backed up"),
				logging.String(logging.FieldErrorHint, "run slipstream backup manually to see the failure"),
			)
		}
	}()
	return true
}

// extractDeviceName gets the device path from a uevent.
func extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			devname = "/dev/" + devname
		}
		return devname
	}

	// DEVPATH looks like /devices/pci.../block/sr0
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
