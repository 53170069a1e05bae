//go:build linux

package disc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const (
	ioctlCDROMDriveStatus = 0x5326
	ioctlCDROMEject       = 0x5309
)

// CheckDriveStatus queries the drive state using the CDROM_DRIVE_STATUS ioctl.
func CheckDriveStatus(devicePath string) (DriveStatus, error) {
	devicePath = strings.TrimSpace(devicePath)
	if devicePath == "" {
		return DriveStatusNoInfo, fmt.Errorf("empty device path")
	}

	fd, err := unix.Open(devicePath, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return DriveStatusNoInfo, fmt.Errorf("open %s: %w", devicePath, err)
	}
	defer unix.Close(fd) //nolint:errcheck

	status, err := unix.IoctlRetInt(fd, ioctlCDROMDriveStatus)
	if err != nil {
		return DriveStatusNoInfo, fmt.Errorf("ioctl CDROM_DRIVE_STATUS on %s: %w", devicePath, err)
	}
	return DriveStatus(status), nil
}

// ejectIoctl opens the tray with CDROMEJECT.
func ejectIoctl(devicePath string) error {
	fd, err := unix.Open(devicePath, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", devicePath, err)
	}
	defer unix.Close(fd) //nolint:errcheck
	if err := unix.IoctlSetInt(fd, ioctlCDROMEject, 0); err != nil {
		return fmt.Errorf("ioctl CDROMEJECT on %s: %w", devicePath, err)
	}
	return nil
}

// WaitForReady polls the drive up to 60 times at 1-second intervals until
// it reports DriveStatusDiscOK or the context is cancelled.
func WaitForReady(ctx context.Context, devicePath string) (DriveStatus, error) {
	const (
		maxPolls     = 60
		pollInterval = 1 * time.Second
	)

	var lastStatus DriveStatus
	for i := 0; i < maxPolls; i++ {
		status, err := CheckDriveStatus(devicePath)
		if err != nil {
			return status, err
		}
		lastStatus = status
		if status == DriveStatusDiscOK {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return lastStatus, ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	return lastStatus, fmt.Errorf("drive %s not ready after %d polls (last status: %s)", devicePath, maxPolls, lastStatus)
}
