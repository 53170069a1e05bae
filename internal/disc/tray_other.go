//go:build !linux

package disc

import (
	"context"
	"fmt"
)

// CheckDriveStatus is only implemented on Linux.
func CheckDriveStatus(devicePath string) (DriveStatus, error) {
	return DriveStatusNoInfo, fmt.Errorf("drive status for %s: %w", devicePath, ErrUnsupported)
}

func ejectIoctl(devicePath string) error {
	return fmt.Errorf("eject %s: %w", devicePath, ErrUnsupported)
}

// WaitForReady is only implemented on Linux.
func WaitForReady(_ context.Context, devicePath string) (DriveStatus, error) {
	return CheckDriveStatus(devicePath)
}
