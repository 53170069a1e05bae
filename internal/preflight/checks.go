package preflight

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"slipstream/internal/disc"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDeviceAccess verifies that target is a readable block device or image
// file. USB selectors are resolved at open time and pass unchecked.
func CheckDeviceAccess(name, target string) Result {
	target = strings.TrimSpace(target)
	if target == "" {
		return Result{Name: name, Detail: "no device configured"}
	}
	if disc.IsUSBTarget(target) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (usb, checked at open)", target)}
	}
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", target)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", target, err)}
	}
	kind := "image file"
	switch {
	case info.Mode()&os.ModeDevice != 0:
		kind = "block device"
	case info.IsDir():
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", target)}
	}
	if err := unix.Access(target, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v; add your user to the cdrom or optical group)", target, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s, readable)", target, kind)}
}

// CheckFreeSpace verifies that the filesystem holding dir can take need bytes.
func CheckFreeSpace(name, dir string, need int64) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", dir, err)}
	}
	avail := st.Bavail * uint64(st.Bsize)
	if need > 0 && avail < uint64(need) {
		return Result{Name: name, Detail: fmt.Sprintf("%s free, image needs %s",
			humanize.IBytes(avail), humanize.IBytes(uint64(need)))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s free", humanize.IBytes(avail))}
}
