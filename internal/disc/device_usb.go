package disc

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/gousb"

	"slipstream/internal/logging"
	"slipstream/internal/scsi"
)

// blockReader is the subset of scsi.Device the USB backend uses.
type blockReader interface {
	Inquiry() (scsi.InquiryData, error)
	ReadCapacity() (scsi.Capacity, error)
	ReadBlocks(lba, count int, dst []byte) (int, error)
	Copyright() (bool, error)
	Close() error
}

// usbDevice reads a USB mass-storage drive with SCSI READ(12). It cannot
// establish title keys or decrypt.
type usbDevice struct {
	drive     blockReader
	pos       int
	scrambled bool
	blocks    int
}

func openUSBDevice(target string, logger *slog.Logger) (*usbDevice, error) {
	vid, pid, err := ParseUSBTarget(target)
	if err != nil {
		return nil, &DeviceOpenError{Target: target, Reason: "usb target", Err: err}
	}
	drive, err := scsi.Open(vid, pid, logger)
	if err != nil {
		return nil, &DeviceOpenError{Target: target, Reason: "usb backend", Err: err}
	}
	if !drive.TestUnitReady() {
		drive.Close()
		return nil, &DeviceOpenError{Target: target, Reason: "drive not ready"}
	}
	dev, err := newUSBDevice(drive, logger)
	if err != nil {
		drive.Close()
		return nil, &DeviceOpenError{Target: target, Reason: "usb backend", Err: err}
	}
	return dev, nil
}

// newUSBDevice identifies the drive and probes the loaded medium. A medium
// whose block size is not SectorSize is rejected; an unanswered capacity or
// copyright probe is tolerated.
func newUSBDevice(drive blockReader, logger *slog.Logger) (*usbDevice, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	dev := &usbDevice{drive: drive}

	if ident, err := drive.Inquiry(); err == nil {
		logger.Debug("usb drive identified",
			logging.String("vendor", ident.Vendor),
			logging.String("product", ident.Product),
			logging.String("revision", ident.Revision),
		)
	} else {
		logger.Debug("usb inquiry failed", logging.Error(err))
	}

	capacity, err := drive.ReadCapacity()
	switch {
	case err != nil:
		logger.Debug("usb capacity unavailable", logging.Error(err))
	case capacity.BlockSize != SectorSize:
		return nil, fmt.Errorf("medium block size %d, want %d", capacity.BlockSize, SectorSize)
	default:
		dev.blocks = capacity.Blocks()
	}

	if protected, err := drive.Copyright(); err == nil {
		dev.scrambled = protected
	}
	return dev, nil
}

// ParseUSBTarget splits "usb:VVVV:PPPP" into hex vendor and product IDs.
// A bare "usb" returns zero IDs, which probes scsi.KnownDevices.
func ParseUSBTarget(target string) (gousb.ID, gousb.ID, error) {
	if target == "usb" {
		return 0, 0, nil
	}
	parts := strings.Split(target, ":")
	if len(parts) != 3 || parts[0] != "usb" {
		return 0, 0, fmt.Errorf("want usb:VVVV:PPPP, got %q", target)
	}
	vid, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("vendor id %q: %w", parts[1], err)
	}
	pid, err := strconv.ParseUint(parts[2], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("product id %q: %w", parts[2], err)
	}
	return gousb.ID(vid), gousb.ID(pid), nil
}

func (d *usbDevice) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	first := int(off / SectorSize)
	skip := int(off % SectorSize)
	count := (skip + len(p) + SectorSize - 1) / SectorSize
	buf := make([]byte, count*SectorSize)
	got, err := d.drive.ReadBlocks(first, count, buf)
	n := copy(p, buf[skip:max(skip, got*SectorSize)])
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, fmt.Errorf("short usb read at sector %d: %d of %d blocks", first, got, count)
	}
	return n, nil
}

func (d *usbDevice) Seek(lba int, mode SeekMode) (int, error) {
	if mode == SeekKey {
		return d.pos, fmt.Errorf("key seek on usb backend: %w", ErrUnsupported)
	}
	d.pos = lba
	return d.pos, nil
}

func (d *usbDevice) Read(p []byte, sectors int, decrypt bool) (int, error) {
	if decrypt {
		return 0, fmt.Errorf("decrypting read on usb backend: %w", ErrUnsupported)
	}
	got, err := d.drive.ReadBlocks(d.pos, sectors, p)
	d.pos += got
	return got, err
}

// Capacity is the number of blocks on the medium, or 0 when unknown.
func (d *usbDevice) Capacity() int {
	return d.blocks
}

func (d *usbDevice) IsScrambled() bool {
	return d.scrambled
}

func (d *usbDevice) Close() error {
	return d.drive.Close()
}
