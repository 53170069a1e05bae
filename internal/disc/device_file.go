package disc

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// fileDevice reads a block device or image file without CSS support.
type fileDevice struct {
	f         *os.File
	pos       int
	scrambled bool
}

func openFileDevice(target string) (*fileDevice, error) {
	f, err := os.Open(target)
	if err != nil {
		return nil, &DeviceOpenError{Target: target, Reason: "plain backend", Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &DeviceOpenError{Target: target, Reason: "stat", Err: err}
	}
	dev := &fileDevice{f: f}
	if info.Mode()&os.ModeDevice != 0 {
		if protected, err := readCopyright(f.Fd()); err == nil {
			dev.scrambled = protected
		}
	}
	return dev, nil
}

func (d *fileDevice) ReadAt(p []byte, off int64) (int, error) {
	return d.f.ReadAt(p, off)
}

func (d *fileDevice) Seek(lba int, mode SeekMode) (int, error) {
	if mode == SeekKey {
		return d.pos, fmt.Errorf("key seek on plain backend: %w", ErrUnsupported)
	}
	off, err := d.f.Seek(int64(lba)*SectorSize, io.SeekStart)
	if err != nil {
		return d.pos, err
	}
	d.pos = int(off / SectorSize)
	return d.pos, nil
}

func (d *fileDevice) Read(p []byte, sectors int, decrypt bool) (int, error) {
	if decrypt {
		return 0, fmt.Errorf("decrypting read on plain backend: %w", ErrUnsupported)
	}
	want := sectors * SectorSize
	if len(p) < want {
		return 0, fmt.Errorf("buffer holds %d bytes, need %d", len(p), want)
	}
	n, err := io.ReadFull(d.f, p[:want])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return 0, err
	}
	got := n / SectorSize
	d.pos += got
	if n%SectorSize != 0 {
		if _, err := d.f.Seek(int64(d.pos)*SectorSize, io.SeekStart); err != nil {
			return got, err
		}
	}
	return got, nil
}

func (d *fileDevice) IsScrambled() bool {
	return d.scrambled
}

func (d *fileDevice) Close() error {
	return d.f.Close()
}
