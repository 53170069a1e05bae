//go:build linux

package disc

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	ioctlDVDReadStruct = 0x5390
	dvdStructCopyright = 0x01
	// sizeof(dvd_struct) is governed by its largest member, dvd_manufact.
	dvdStructSize = 2064
)

// readCopyright asks the drive for layer 0 copyright information. A nonzero
// copy protection system type means the disc is CSS protected.
func readCopyright(fd uintptr) (bool, error) {
	var buf [dvdStructSize]byte
	buf[0] = dvdStructCopyright
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(ioctlDVDReadStruct), uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return false, fmt.Errorf("ioctl DVD_READ_STRUCT: %w", errno)
	}
	// struct dvd_copyright { __u8 type; __u8 layer_num; __u8 cpst; __u8 rmi; }
	return buf[2] != 0, nil
}
