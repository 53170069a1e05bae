package scsi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/gousb"

	"slipstream/internal/logging"
)

const (
	controlTimeout = 5 * time.Second
	readTimeout    = 60 * time.Second
)

// ErrNoDrive is returned when no supported USB drive is attached.
var ErrNoDrive = errors.New("no usb dvd drive found")

// KnownDevices lists external drives that autodetection probes for.
var KnownDevices = []struct {
	VendorID  gousb.ID
	ProductID gousb.ID
	Name      string
}{
	{0x0e8d, 0x1887, "Hitachi-LG/MediaTek Slim Portable DVD Writer"},
	{0x152d, 0x2339, "JMicron USB CD/DVD"},
	{0x13fd, 0x0840, "Initio USB CD/DVD"},
	{0x1c6b, 0xa223, "Philips USB CD/DVD"},
}

// BulkIn is the device-to-host bulk endpoint.
type BulkIn interface {
	ReadContext(ctx context.Context, buf []byte) (int, error)
}

// BulkOut is the host-to-device bulk endpoint.
type BulkOut interface {
	WriteContext(ctx context.Context, buf []byte) (int, error)
}

// StatusError reports a command that completed with a non-passing CSW.
type StatusError struct {
	Opcode byte
	Status byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scsi command 0x%02x failed with status %d", e.Opcode, e.Status)
}

// Device issues commands over a pair of bulk endpoints.
type Device struct {
	Name string

	in      BulkIn
	out     BulkOut
	tag     uint32
	logger  *slog.Logger
	release func()
}

// NewDevice wraps already claimed endpoints.
func NewDevice(name string, in BulkIn, out BulkOut, logger *slog.Logger) *Device {
	return &Device{
		Name:   name,
		in:     in,
		out:    out,
		tag:    1,
		logger: logging.NewComponentLogger(logger, "scsi"),
	}
}

// Open claims a USB drive. Zero IDs probe KnownDevices in order.
func Open(vendorID, productID gousb.ID, logger *slog.Logger) (*Device, error) {
	ctx := gousb.NewContext()

	var (
		dev  *gousb.Device
		name string
		err  error
	)
	if vendorID != 0 && productID != 0 {
		dev, err = ctx.OpenDeviceWithVIDPID(vendorID, productID)
		if err != nil {
			ctx.Close()
			return nil, fmt.Errorf("open usb device %s:%s: %w", vendorID, productID, err)
		}
		name = fmt.Sprintf("%s:%s", vendorID, productID)
	} else {
		for _, known := range KnownDevices {
			dev, err = ctx.OpenDeviceWithVIDPID(known.VendorID, known.ProductID)
			if err == nil && dev != nil {
				name = known.Name
				break
			}
		}
	}
	if dev == nil {
		ctx.Close()
		return nil, ErrNoDrive
	}
	_ = dev.SetAutoDetach(true)

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usb config: %w", err)
	}

	intf, err := claimMassStorage(cfg)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, err
	}

	var (
		epIn  *gousb.InEndpoint
		epOut *gousb.OutEndpoint
	)
	for _, ep := range intf.Setting.Endpoints {
		if ep.Direction == gousb.EndpointDirectionIn {
			if in, err := intf.InEndpoint(ep.Number); err == nil {
				epIn = in
			}
		} else if out, err := intf.OutEndpoint(ep.Number); err == nil {
			epOut = out
		}
	}
	if epIn == nil || epOut == nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, errors.New("usb bulk endpoints not found")
	}

	d := NewDevice(name, epIn, epOut, logger)
	d.release = func() {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
	}
	d.logger.Debug("usb drive claimed",
		logging.String("drive", name),
		logging.String("endpoint_out", fmt.Sprintf("0x%02x", uint8(epOut.Desc.Address))),
		logging.String("endpoint_in", fmt.Sprintf("0x%02x", uint8(epIn.Desc.Address))),
	)
	return d, nil
}

// claimMassStorage prefers a class 8 interface and falls back to the first
// claimable one, since some bridges report a vendor class.
func claimMassStorage(cfg *gousb.Config) (*gousb.Interface, error) {
	for _, iface := range cfg.Desc.Interfaces {
		for _, alt := range iface.AltSettings {
			if alt.Class != gousb.ClassMassStorage {
				continue
			}
			if intf, err := cfg.Interface(iface.Number, alt.Alternate); err == nil {
				return intf, nil
			}
		}
	}
	for _, iface := range cfg.Desc.Interfaces {
		if intf, err := cfg.Interface(iface.Number, 0); err == nil {
			return intf, nil
		}
	}
	return nil, errors.New("no claimable usb interface")
}

// Close releases the USB resources.
func (d *Device) Close() error {
	if d.release != nil {
		d.release()
		d.release = nil
	}
	return nil
}

// Command sends cdb and reads up to len(data) bytes of reply. It returns
// the number of data bytes received.
func (d *Device) Command(cdb []byte, data []byte, timeout time.Duration) (int, error) {
	direction := byte(DirectionIn)
	if len(data) == 0 {
		direction = DirectionOut
	}
	tag := d.tag
	d.tag++
	cbw := BuildCBW(tag, uint32(len(data)), direction, cdb)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := d.out.WriteContext(ctx, cbw)
	if err != nil {
		return 0, fmt.Errorf("cbw write: %w", err)
	}
	if n != len(cbw) {
		return 0, fmt.Errorf("cbw short write: %d/%d bytes", n, len(cbw))
	}

	received := 0
	if len(data) > 0 {
		received, err = d.in.ReadContext(ctx, data)
		if err != nil {
			d.logger.Debug("data phase failed; reading status anyway",
				logging.String("opcode", fmt.Sprintf("0x%02x", cdb[0])),
				logging.Error(err),
			)
			received = 0
		}
	}

	status := make([]byte, CSWSize)
	if _, err := d.in.ReadContext(ctx, status); err != nil {
		return received, fmt.Errorf("csw read: %w", err)
	}
	csw, err := ParseCSW(status)
	if err != nil {
		return received, err
	}
	if csw.Tag != tag {
		return received, fmt.Errorf("%w: sent %d, got %d", ErrCSWTag, tag, csw.Tag)
	}
	if csw.Status != StatusPassed {
		return received, &StatusError{Opcode: cdb[0], Status: csw.Status}
	}
	return received, nil
}

// TestUnitReady reports whether a disc is loaded and readable.
func (d *Device) TestUnitReady() bool {
	_, err := d.Command(BuildTestUnitReady(), nil, controlTimeout)
	return err == nil
}

// Inquiry returns the drive identification strings.
func (d *Device) Inquiry() (InquiryData, error) {
	buf := make([]byte, inquiryReplyLen)
	if _, err := d.Command(BuildInquiry(), buf, controlTimeout); err != nil {
		return InquiryData{}, fmt.Errorf("inquiry: %w", err)
	}
	return ParseInquiry(buf), nil
}

// ReadCapacity returns the last addressable block and block size.
func (d *Device) ReadCapacity() (Capacity, error) {
	buf := make([]byte, capacityReplyLen)
	n, err := d.Command(BuildReadCapacity(), buf, controlTimeout)
	if err != nil {
		return Capacity{}, fmt.Errorf("read capacity: %w", err)
	}
	capacity, ok := ParseCapacity(buf[:n])
	if !ok {
		return Capacity{}, fmt.Errorf("read capacity: short reply (%d bytes)", n)
	}
	return capacity, nil
}

// ReadBlocks reads count 2048-byte blocks at lba into dst and returns the
// number of whole blocks received.
func (d *Device) ReadBlocks(lba, count int, dst []byte) (int, error) {
	want := count * BlockSize
	if len(dst) < want {
		return 0, fmt.Errorf("read buffer holds %d bytes, need %d", len(dst), want)
	}
	n, err := d.Command(BuildRead12(uint32(lba), uint32(count)), dst[:want], readTimeout)
	if err != nil {
		return n / BlockSize, fmt.Errorf("read(12) at lba %d: %w", lba, err)
	}
	return n / BlockSize, nil
}

// Copyright reports whether the loaded disc declares a protection system.
func (d *Device) Copyright() (bool, error) {
	buf := make([]byte, copyrightReplyLen)
	n, err := d.Command(BuildReadCopyright(), buf, controlTimeout)
	if err != nil {
		return false, fmt.Errorf("read disc structure: %w", err)
	}
	protected, ok := ParseCopyright(buf[:n])
	if !ok {
		return false, fmt.Errorf("read disc structure: short reply (%d bytes)", n)
	}
	return protected, nil
}
