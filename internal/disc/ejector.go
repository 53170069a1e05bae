package disc

import (
	"context"
	"fmt"
	"os/exec"
)

// Ejector defines disc eject operations.
type Ejector interface {
	Eject(ctx context.Context, device string) error
}

type trayEjector struct {
	run func(ctx context.Context, name string, args ...string) error
}

// NewEjector creates an ejector that opens the tray with CDROMEJECT and
// falls back to the eject utility.
func NewEjector() Ejector {
	return trayEjector{run: func(ctx context.Context, name string, args ...string) error {
		return exec.CommandContext(ctx, name, args...).Run()
	}}
}

func (e trayEjector) Eject(ctx context.Context, device string) error {
	if device != "" && !IsUSBTarget(device) {
		if err := ejectIoctl(device); err == nil {
			return nil
		}
	}
	var args []string
	if device != "" && !IsUSBTarget(device) {
		args = append(args, device)
	}
	if err := e.run(ctx, "eject", args...); err != nil {
		return fmt.Errorf("eject %s: %w", device, err)
	}
	return nil
}
