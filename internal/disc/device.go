package disc

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"slipstream/internal/iso9660"
	"slipstream/internal/logging"
)

// SectorSize is the size of one DVD logical block in bytes.
const SectorSize = iso9660.SectorSize

// SeekMode selects what a seek establishes besides the position.
type SeekMode int

const (
	// SeekPlain positions the device without touching key state.
	SeekPlain SeekMode = iota
	// SeekMPEG positions inside a title, letting the backend skip key checks.
	SeekMPEG
	// SeekKey positions on a title's first sector and establishes its key.
	SeekKey
)

func (m SeekMode) String() string {
	switch m {
	case SeekPlain:
		return "plain"
	case SeekMPEG:
		return "mpeg"
	case SeekKey:
		return "key"
	default:
		return fmt.Sprintf("SeekMode(%d)", int(m))
	}
}

// Device is an exclusively owned handle on one target.
//
// Seek and Read move a stream position. ReadAt is an unaided positioned read
// used for filesystem metadata; it never decrypts and does not move the
// stream position.
type Device interface {
	io.ReaderAt
	io.Closer
	Seek(lba int, mode SeekMode) (int, error)
	Read(p []byte, sectors int, decrypt bool) (int, error)
	IsScrambled() bool
}

// Backend names a Device implementation.
type Backend string

const (
	BackendAuto   Backend = "auto"
	BackendDVDCSS Backend = "dvdcss"
	BackendPlain  Backend = "plain"
	BackendUSB    Backend = "usb"
)

// ParseBackend validates a configured backend name.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(name))); b {
	case "":
		return BackendAuto, nil
	case BackendAuto, BackendDVDCSS, BackendPlain, BackendUSB:
		return b, nil
	default:
		return "", fmt.Errorf("unknown device backend %q", name)
	}
}

// IsUSBTarget reports whether target names a USB drive ("usb" or "usb:VVVV:PPPP").
func IsUSBTarget(target string) bool {
	return target == "usb" || strings.HasPrefix(target, "usb:")
}

// OpenDevice opens target with the selected backend. The auto backend sends
// USB targets to the USB backend and otherwise prefers libdvdcss, falling
// back to plain reads when libdvdcss is not compiled in.
func OpenDevice(backend Backend, target string, logger *slog.Logger) (Device, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	switch backend {
	case BackendDVDCSS:
		return openDVDCSS(target)
	case BackendPlain:
		return openFileDevice(target)
	case BackendUSB:
		return openUSBDevice(target, logger)
	case BackendAuto, "":
		if IsUSBTarget(target) {
			return openUSBDevice(target, logger)
		}
		dev, err := openDVDCSS(target)
		if err == nil {
			return dev, nil
		}
		if !errors.Is(err, ErrBackendUnavailable) {
			return nil, err
		}
		logger.Debug("libdvdcss unavailable, using plain reads", logging.String(logging.FieldTarget, target))
		return openFileDevice(target)
	default:
		return nil, &DeviceOpenError{Target: target, Reason: fmt.Sprintf("unknown backend %q", backend)}
	}
}
