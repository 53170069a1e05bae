package iso9660

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

const (
	minRecordLength = 33
	flagDirectory   = 0x02
)

// Record is a raw directory record.
type Record struct {
	Extent     uint32
	DataLength uint32
	Recorded   time.Time
	Flags      byte
	Identifier string
}

// IsDir reports whether the record describes a directory.
func (r Record) IsDir() bool {
	return r.Flags&flagDirectory != 0
}

func (r Record) isSelfOrParent() bool {
	return r.Identifier == "\x00" || r.Identifier == "\x01"
}

// parseRecord decodes the record at the start of b and returns it with its
// on-disc length.
func parseRecord(b []byte) (Record, int, error) {
	if len(b) < minRecordLength {
		return Record{}, 0, fmt.Errorf("%w: directory record truncated", ErrInvalidDescriptor)
	}
	length := int(b[0])
	if length < minRecordLength || length > len(b) {
		return Record{}, 0, fmt.Errorf("%w: directory record length %d", ErrInvalidDescriptor, length)
	}
	nameLen := int(b[32])
	if 33+nameLen > length {
		return Record{}, 0, fmt.Errorf("%w: identifier overruns record (%d > %d)", ErrInvalidDescriptor, 33+nameLen, length)
	}
	return Record{
		Extent:     binary.LittleEndian.Uint32(b[2:6]),
		DataLength: binary.LittleEndian.Uint32(b[10:14]),
		Recorded:   parseRecordDate(b[18:25]),
		Flags:      b[25],
		Identifier: string(b[33 : 33+nameLen]),
	}, length, nil
}

// StripVersion removes a trailing ";N" file version suffix.
func StripVersion(name string) string {
	if idx := strings.LastIndexByte(name, ';'); idx >= 0 {
		return name[:idx]
	}
	return name
}
