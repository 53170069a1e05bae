package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"slipstream/internal/testsupport"
)

func newTestMonitor(t *testing.T, handler Handler) *Monitor {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithTarget("/dev/sr0"))
	m, err := New(cfg, nil, handler)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m
}

func discEvent(env map[string]string) netlink.UEvent {
	return netlink.UEvent{Action: netlink.CHANGE, Env: env}
}

func TestNewRequiresDevice(t *testing.T) {
	if _, err := New(nil, nil, nil); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice for nil config, got %v", err)
	}
	cfg := testsupport.NewConfig(t, testsupport.WithTarget(""))
	if _, err := New(cfg, nil, nil); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice for empty device, got %v", err)
	}
}

func TestNewPrefersWatchDevice(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTarget("/dev/sr0"))
	cfg.Watch.Device = "/dev/sr1"
	m, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if m.Device() != "/dev/sr1" {
		t.Fatalf("expected /dev/sr1, got %s", m.Device())
	}
}

func TestNewResolvesSymlinkAlias(t *testing.T) {
	dir := t.TempDir()
	device := filepath.Join(dir, "sr0")
	if err := os.WriteFile(device, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "cdrom")
	if err := os.Symlink(device, link); err != nil {
		t.Fatal(err)
	}
	resolved, err := filepath.EvalSymlinks(device)
	if err != nil {
		t.Fatal(err)
	}
	cfg := testsupport.NewConfig(t, testsupport.WithTarget(link))

	var got atomic.Value
	m, err := New(cfg, nil, func(_ context.Context, device string) error {
		got.Store(device)
		return nil
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !m.handleEvent(context.Background(), discEvent(map[string]string{"DEVNAME": resolved})) {
		t.Fatal("expected event for resolved device to be handled")
	}
	m.inflight.Wait()
	if got.Load() != link {
		t.Fatalf("handler should receive configured path, got %v", got.Load())
	}
}

func TestStopWithoutStart(t *testing.T) {
	m := newTestMonitor(t, nil)
	m.Stop()
	m.Stop()
	if m.Running() {
		t.Fatal("expected monitor not running")
	}
}

func TestStopWaitsForDispatchedHandler(t *testing.T) {
	var finished atomic.Bool
	m := newTestMonitor(t, func(context.Context, string) error {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return nil
	})

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	m.mu.Lock()
	m.quit = make(chan struct{})
	m.loopDone = make(chan struct{})
	m.running = true
	go m.dispatch(context.Background(), queue, errs, m.quit, m.loopDone)
	m.mu.Unlock()

	// Once the loop has taken the event, Stop must not return before the
	// handler it starts has finished.
	queue <- discEvent(map[string]string{"DEVNAME": "/dev/sr0"})
	m.Stop()

	if !finished.Load() {
		t.Fatal("Stop returned while the handler was still running")
	}
	if m.Running() {
		t.Fatal("expected monitor stopped")
	}
}

func TestBuildMatcher(t *testing.T) {
	matcher := buildMatcher()
	disc := map[string]string{
		"SUBSYSTEM":      "block",
		"ID_CDROM":       "1",
		"ID_CDROM_MEDIA": "1",
	}
	if !matcher.Evaluate(netlink.UEvent{Action: netlink.CHANGE, Env: disc}) {
		t.Error("expected matcher to accept change event")
	}
	if !matcher.Evaluate(netlink.UEvent{Action: netlink.ADD, Env: disc}) {
		t.Error("expected matcher to accept add event")
	}
	if matcher.Evaluate(netlink.UEvent{Action: netlink.REMOVE, Env: disc}) {
		t.Error("expected matcher to reject remove event")
	}
	noMedia := map[string]string{"SUBSYSTEM": "block", "ID_CDROM": "1"}
	if matcher.Evaluate(netlink.UEvent{Action: netlink.CHANGE, Env: noMedia}) {
		t.Error("expected matcher to reject event without media")
	}
}

func TestExtractDeviceName(t *testing.T) {
	tests := []struct {
		env  map[string]string
		want string
	}{
		{map[string]string{"DEVNAME": "/dev/sr0"}, "/dev/sr0"},
		{map[string]string{"DEVNAME": "sr1"}, "/dev/sr1"},
		{map[string]string{"DEVPATH": "/devices/pci0000:00/ata1/host0/block/sr2"}, "/dev/sr2"},
		{map[string]string{}, ""},
	}
	for _, tt := range tests {
		if got := extractDeviceName(discEvent(tt.env)); got != tt.want {
			t.Fatalf("extractDeviceName(%v) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestHandleEventFiltering(t *testing.T) {
	var calls atomic.Int32
	m := newTestMonitor(t, func(context.Context, string) error {
		calls.Add(1)
		return nil
	})

	if m.handleEvent(context.Background(), discEvent(map[string]string{})) {
		t.Error("event without device name must be ignored")
	}
	if m.handleEvent(context.Background(), discEvent(map[string]string{"DEVNAME": "/dev/sr1"})) {
		t.Error("event for another device must be ignored")
	}
	if !m.handleEvent(context.Background(), discEvent(map[string]string{"DEVNAME": "/dev/sr0"})) {
		t.Error("event for configured device must be handled")
	}
	m.Stop()
	if calls.Load() != 1 {
		t.Fatalf("expected 1 handler call, got %d", calls.Load())
	}
}

func TestHandleEventDropsWhileBusy(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	m := newTestMonitor(t, func(context.Context, string) error {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return errors.New("eject failed")
	})

	event := discEvent(map[string]string{"DEVNAME": "/dev/sr0"})
	if !m.handleEvent(context.Background(), event) {
		t.Fatal("first event must be handled")
	}
	<-started
	if m.handleEvent(context.Background(), event) {
		t.Fatal("second event must be dropped while busy")
	}
	close(release)
	m.Stop()

	if calls.Load() != 1 {
		t.Fatalf("expected 1 handler call, got %d", calls.Load())
	}
	deadline := time.Now().Add(time.Second)
	for m.busy.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !m.handleEvent(context.Background(), event) {
		t.Fatal("event after handler finished must be handled")
	}
	m.Stop()
	if calls.Load() != 2 {
		t.Fatalf("expected 2 handler calls, got %d", calls.Load())
	}
}
