//go:build dvdcss

package disc

/*
#cgo pkg-config: libdvdcss
#include <stdlib.h>
#include <dvdcss/dvdcss.h>
*/
import "C"

import (
	"fmt"
	"os"
	"unsafe"
)

// cssDevice reads through libdvdcss, which cracks title keys on SeekKey and
// descrambles on decrypting reads.
type cssDevice struct {
	handle C.dvdcss_t
	raw    *os.File
}

func openDVDCSS(target string) (Device, error) {
	ctarget := C.CString(target)
	defer C.free(unsafe.Pointer(ctarget))

	handle := C.dvdcss_open(ctarget)
	if handle == nil {
		return nil, &DeviceOpenError{Target: target, Reason: "dvdcss_open failed"}
	}
	raw, err := os.Open(target)
	if err != nil {
		C.dvdcss_close(handle)
		return nil, &DeviceOpenError{Target: target, Reason: "open for metadata reads", Err: err}
	}
	return &cssDevice{handle: handle, raw: raw}, nil
}

func (d *cssDevice) ReadAt(p []byte, off int64) (int, error) {
	return d.raw.ReadAt(p, off)
}

func (d *cssDevice) Seek(lba int, mode SeekMode) (int, error) {
	flags := C.int(C.DVDCSS_NOFLAGS)
	switch mode {
	case SeekMPEG:
		flags = C.DVDCSS_SEEK_MPEG
	case SeekKey:
		flags = C.DVDCSS_SEEK_KEY
	}
	pos := int(C.dvdcss_seek(d.handle, C.int(lba), flags))
	if pos < 0 {
		return pos, fmt.Errorf("dvdcss_seek(%d, %s) failed", lba, mode)
	}
	return pos, nil
}

func (d *cssDevice) Read(p []byte, sectors int, decrypt bool) (int, error) {
	if sectors <= 0 {
		return 0, nil
	}
	if len(p) < sectors*SectorSize {
		return 0, fmt.Errorf("buffer holds %d bytes, need %d", len(p), sectors*SectorSize)
	}
	flags := C.int(C.DVDCSS_NOFLAGS)
	if decrypt {
		flags = C.DVDCSS_READ_DECRYPT
	}
	n := int(C.dvdcss_read(d.handle, unsafe.Pointer(&p[0]), C.int(sectors), flags))
	if n < 0 {
		return 0, fmt.Errorf("dvdcss_read(%d sectors) failed", sectors)
	}
	return n, nil
}

func (d *cssDevice) IsScrambled() bool {
	return C.dvdcss_is_scrambled(d.handle) != 0
}

func (d *cssDevice) Close() error {
	rawErr := d.raw.Close()
	if C.dvdcss_close(d.handle) != 0 {
		return fmt.Errorf("dvdcss_close failed")
	}
	return rawErr
}
