package disc

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slipstream/internal/scsi"
)

func TestParseBackend(t *testing.T) {
	for _, name := range []string{"auto", "dvdcss", "plain", "usb"} {
		b, err := ParseBackend(name)
		require.NoError(t, err)
		assert.Equal(t, Backend(name), b)
	}
	b, err := ParseBackend(" ")
	require.NoError(t, err)
	assert.Equal(t, BackendAuto, b)
	_, err = ParseBackend("magic")
	assert.Error(t, err)
}

func TestSeekModeString(t *testing.T) {
	assert.Equal(t, "plain", SeekPlain.String())
	assert.Equal(t, "mpeg", SeekMPEG.String())
	assert.Equal(t, "key", SeekKey.String())
	assert.Equal(t, "SeekMode(7)", SeekMode(7).String())
}

func TestParseUSBTarget(t *testing.T) {
	vid, pid, err := ParseUSBTarget("usb:0e8d:1887")
	require.NoError(t, err)
	assert.Equal(t, gousb.ID(0x0e8d), vid)
	assert.Equal(t, gousb.ID(0x1887), pid)

	vid, pid, err = ParseUSBTarget("usb")
	require.NoError(t, err)
	assert.Zero(t, vid)
	assert.Zero(t, pid)

	for _, bad := range []string{"usb:0e8d", "usb:zzzz:1887", "sr0:1:2"} {
		_, _, err := ParseUSBTarget(bad)
		assert.Error(t, err, bad)
	}
	assert.True(t, IsUSBTarget("usb:0e8d:1887"))
	assert.False(t, IsUSBTarget("/dev/sr0"))
}

func writeImageFile(t *testing.T, sectors int) (string, []byte) {
	t.Helper()
	data := make([]byte, sectors*SectorSize)
	for i := range data {
		data[i] = byte(i / SectorSize)
	}
	path := filepath.Join(t.TempDir(), "disc.iso")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path, data
}

func TestFileDeviceReadsAndSeeks(t *testing.T) {
	path, data := writeImageFile(t, 10)
	dev, err := openFileDevice(path)
	require.NoError(t, err)
	defer dev.Close()

	assert.False(t, dev.IsScrambled(), "image files are never probed for copyright")

	pos, err := dev.Seek(3, SeekMPEG)
	require.NoError(t, err)
	assert.Equal(t, 3, pos)

	buf := make([]byte, 4*SectorSize)
	n, err := dev.Read(buf, 4, false)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, data[3*SectorSize:7*SectorSize], buf)

	n, err = dev.Read(buf, 4, false)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "read past the end returns the remaining sectors")
}

func TestFileDeviceRefusesKeyOperations(t *testing.T) {
	path, _ := writeImageFile(t, 4)
	dev, err := openFileDevice(path)
	require.NoError(t, err)
	defer dev.Close()

	_, err = dev.Seek(0, SeekKey)
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = dev.Read(make([]byte, SectorSize), 1, true)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestOpenDevicePlainMissingFile(t *testing.T) {
	_, err := OpenDevice(BackendPlain, filepath.Join(t.TempDir(), "missing.iso"), nil)
	assert.ErrorIs(t, err, ErrDeviceOpen)
}

func TestOpenDeviceAutoFallsBackToPlain(t *testing.T) {
	path, _ := writeImageFile(t, 4)
	dev, err := OpenDevice(BackendAuto, path, nil)
	require.NoError(t, err)
	defer dev.Close()
	assert.NotNil(t, dev)
}

type fakeBlocks struct {
	data      []byte
	protected bool
	copyErr   error
	blockSize uint32
	capErr    error
	closed    bool
}

func (f *fakeBlocks) Inquiry() (scsi.InquiryData, error) {
	return scsi.InquiryData{Vendor: "ASUS", Product: "SDRW-08D2S-U"}, nil
}

func (f *fakeBlocks) ReadCapacity() (scsi.Capacity, error) {
	if f.capErr != nil {
		return scsi.Capacity{}, f.capErr
	}
	size := f.blockSize
	if size == 0 {
		size = SectorSize
	}
	return scsi.Capacity{LastLBA: uint32(len(f.data)/SectorSize) - 1, BlockSize: size}, nil
}

func (f *fakeBlocks) ReadBlocks(lba, count int, dst []byte) (int, error) {
	start := lba * SectorSize
	if start >= len(f.data) {
		return 0, errors.New("lba out of range")
	}
	n := copy(dst[:count*SectorSize], f.data[start:])
	return n / SectorSize, nil
}

func (f *fakeBlocks) Copyright() (bool, error) { return f.protected, f.copyErr }

func (f *fakeBlocks) Close() error {
	f.closed = true
	return nil
}

func TestUSBDeviceReadAtSpansSectors(t *testing.T) {
	data := make([]byte, 6*SectorSize)
	for i := range data {
		data[i] = byte(i % 251)
	}
	blocks := &fakeBlocks{data: data, protected: true}
	dev, err := newUSBDevice(blocks, nil)
	require.NoError(t, err)
	assert.True(t, dev.IsScrambled())
	assert.Equal(t, 6, dev.Capacity())

	buf := make([]byte, 3000)
	n, err := dev.ReadAt(buf, 1000)
	require.NoError(t, err)
	assert.Equal(t, 3000, n)
	assert.Equal(t, data[1000:4000], buf)

	pos, err := dev.Seek(2, SeekPlain)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
	sectors := make([]byte, 2*SectorSize)
	got, err := dev.Read(sectors, 2, false)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
	assert.Equal(t, data[2*SectorSize:4*SectorSize], sectors)

	_, err = dev.Read(sectors, 1, true)
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = dev.Seek(0, SeekKey)
	assert.ErrorIs(t, err, ErrUnsupported)

	require.NoError(t, dev.Close())
	assert.True(t, blocks.closed)
}

func TestUSBDeviceCopyrightProbeFailure(t *testing.T) {
	dev, err := newUSBDevice(&fakeBlocks{data: make([]byte, SectorSize), copyErr: errors.New("no medium")}, nil)
	require.NoError(t, err)
	assert.False(t, dev.IsScrambled())
}

func TestUSBDeviceCapacityProbe(t *testing.T) {
	_, err := newUSBDevice(&fakeBlocks{data: make([]byte, 4*SectorSize), blockSize: 512}, nil)
	assert.ErrorContains(t, err, "block size 512")

	dev, err := newUSBDevice(&fakeBlocks{data: make([]byte, 4*SectorSize), capErr: errors.New("not ready")}, nil)
	require.NoError(t, err)
	assert.Zero(t, dev.Capacity(), "unknown capacity")
}

func TestExceedsCapacity(t *testing.T) {
	dev, err := newUSBDevice(&fakeBlocks{data: make([]byte, 4*SectorSize)}, nil)
	require.NoError(t, err)

	blocks, over := exceedsCapacity(dev, 10)
	assert.True(t, over)
	assert.Equal(t, 4, blocks)
	_, over = exceedsCapacity(dev, 4)
	assert.False(t, over)

	dev.blocks = 0
	_, over = exceedsCapacity(dev, 10)
	assert.False(t, over, "unknown capacity never trips the check")

	path, _ := writeImageFile(t, 2)
	file, err := openFileDevice(path)
	require.NoError(t, err)
	defer file.Close()
	_, over = exceedsCapacity(file, 10)
	assert.False(t, over, "file devices do not report capacity")
}
