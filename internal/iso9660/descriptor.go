package iso9660

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
	"strconv"
	"strings"
	"time"
)

const (
	// SectorSize is the logical block size used by DVD-Video volumes.
	SectorSize = 2048

	descriptorStart  = 16
	maxDescriptors   = 64
	standardID       = "CD001"
	typePrimary      = 1
	typeSupplemental = 2
	typeTerminator   = 255
)

var (
	// ErrInvalidDescriptor marks volume metadata that cannot be parsed.
	ErrInvalidDescriptor = errors.New("invalid volume descriptor")
	// ErrGeometryOverflow marks a volume whose byte size does not fit in an int.
	ErrGeometryOverflow = errors.New("geometry overflow")
)

// VolumeDescriptor is the decoded primary volume descriptor. Dates that are
// not recorded on the disc are left as the zero time.
type VolumeDescriptor struct {
	Version              int
	FileStructureVersion int
	Flags                int
	SectorSize           int
	SectorCount          int

	SystemID            string
	VolumeID            string
	VolumeSetID         string
	PublisherID         string
	PreparerID          string
	ApplicationID       string
	CopyrightFileID     string
	AbstractFileID      string
	BibliographicFileID string

	Created   time.Time
	Modified  time.Time
	Expires   time.Time
	Effective time.Time

	EscapeSequences      [32]byte
	VolumeSetSize        int
	VolumeSequenceNumber int

	PathTableSize      int
	PathTableL         uint32
	OptionalPathTableL uint32
	PathTableM         uint32
	OptionalPathTableM uint32

	ApplicationUse [512]byte
	Root           Record
}

// ByteSize returns SectorSize × SectorCount, failing with ErrGeometryOverflow
// when the product cannot be represented.
func (v VolumeDescriptor) ByteSize() (int, error) {
	return checkedByteSize(uint64(v.SectorSize), uint64(v.SectorCount), math.MaxInt)
}

// LastLBA is the address of the final sector on the volume.
func (v VolumeDescriptor) LastLBA() int {
	return v.SectorCount - 1
}

func checkedByteSize(sectorSize, sectorCount, limit uint64) (int, error) {
	hi, lo := bits.Mul64(sectorSize, sectorCount)
	if hi != 0 || lo > limit {
		return 0, fmt.Errorf("%w: %d sectors of %d bytes", ErrGeometryOverflow, sectorCount, sectorSize)
	}
	return int(lo), nil
}

// ReadVolumeDescriptor scans the descriptor set starting at sector 16 and
// decodes the primary descriptor.
func ReadVolumeDescriptor(r io.ReaderAt) (VolumeDescriptor, error) {
	buf := make([]byte, SectorSize)
	var (
		primary    VolumeDescriptor
		found      bool
		escapes    [32]byte
		hasEscapes bool
	)
scan:
	for i := 0; i < maxDescriptors; i++ {
		lba := descriptorStart + i
		if _, err := r.ReadAt(buf, int64(lba)*SectorSize); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return VolumeDescriptor{}, fmt.Errorf("read descriptor sector %d: %w", lba, err)
		}
		if string(buf[1:6]) != standardID {
			if i == 0 {
				return VolumeDescriptor{}, fmt.Errorf("%w: no %s signature at sector %d", ErrInvalidDescriptor, standardID, lba)
			}
			break
		}
		switch buf[0] {
		case typeTerminator:
			break scan
		case typePrimary:
			if found {
				continue
			}
			pvd, err := ParseVolumeDescriptor(buf)
			if err != nil {
				return VolumeDescriptor{}, err
			}
			primary, found = pvd, true
		case typeSupplemental:
			if !hasEscapes {
				copy(escapes[:], buf[88:120])
				hasEscapes = true
			}
		}
	}
	if !found {
		return VolumeDescriptor{}, fmt.Errorf("%w: primary volume descriptor not found", ErrInvalidDescriptor)
	}
	if hasEscapes && primary.EscapeSequences == ([32]byte{}) {
		primary.EscapeSequences = escapes
	}
	return primary, nil
}

// ParseVolumeDescriptor decodes a single 2048-byte primary descriptor sector.
func ParseVolumeDescriptor(sector []byte) (VolumeDescriptor, error) {
	if len(sector) < SectorSize {
		return VolumeDescriptor{}, fmt.Errorf("%w: short sector (%d bytes)", ErrInvalidDescriptor, len(sector))
	}
	if sector[0] != typePrimary || string(sector[1:6]) != standardID {
		return VolumeDescriptor{}, fmt.Errorf("%w: not a primary descriptor (type %d)", ErrInvalidDescriptor, sector[0])
	}

	v := VolumeDescriptor{
		Version:              int(sector[6]),
		Flags:                int(sector[7]),
		SystemID:             trimIdentifier(sector[8:40]),
		VolumeID:             trimIdentifier(sector[40:72]),
		SectorCount:          int(binary.LittleEndian.Uint32(sector[80:84])),
		VolumeSetSize:        int(binary.LittleEndian.Uint16(sector[120:122])),
		VolumeSequenceNumber: int(binary.LittleEndian.Uint16(sector[124:126])),
		SectorSize:           int(binary.LittleEndian.Uint16(sector[128:130])),
		PathTableSize:        int(binary.LittleEndian.Uint32(sector[132:136])),
		PathTableL:           binary.LittleEndian.Uint32(sector[140:144]),
		OptionalPathTableL:   binary.LittleEndian.Uint32(sector[144:148]),
		PathTableM:           binary.BigEndian.Uint32(sector[148:152]),
		OptionalPathTableM:   binary.BigEndian.Uint32(sector[152:156]),
		VolumeSetID:          trimIdentifier(sector[190:318]),
		PublisherID:          trimIdentifier(sector[318:446]),
		PreparerID:           trimIdentifier(sector[446:574]),
		ApplicationID:        trimIdentifier(sector[574:702]),
		CopyrightFileID:      trimIdentifier(sector[702:739]),
		AbstractFileID:       trimIdentifier(sector[739:776]),
		BibliographicFileID:  trimIdentifier(sector[776:813]),
		Created:              parseVolumeDate(sector[813:830]),
		Modified:             parseVolumeDate(sector[830:847]),
		Expires:              parseVolumeDate(sector[847:864]),
		Effective:            parseVolumeDate(sector[864:881]),
		FileStructureVersion: int(sector[881]),
	}
	copy(v.EscapeSequences[:], sector[88:120])
	copy(v.ApplicationUse[:], sector[883:1395])

	if v.SectorSize == 0 {
		return VolumeDescriptor{}, fmt.Errorf("%w: logical block size is zero", ErrInvalidDescriptor)
	}
	root, _, err := parseRecord(sector[156:190])
	if err != nil {
		return VolumeDescriptor{}, fmt.Errorf("root directory record: %w", err)
	}
	v.Root = root
	return v, nil
}

func trimIdentifier(b []byte) string {
	return strings.TrimRight(string(b), " \x00")
}

// parseVolumeDate decodes the 17-byte "YYYYMMDDHHMMSSFF" + GMT offset form.
// A zero year, unset bytes, or malformed digits yield the zero time.
func parseVolumeDate(b []byte) time.Time {
	if len(b) < 17 {
		return time.Time{}
	}
	digits := b[:16]
	if bytes.Count(digits, []byte{0}) == len(digits) {
		return time.Time{}
	}
	fields := [7]int{}
	widths := [7]int{4, 2, 2, 2, 2, 2, 2}
	off := 0
	for i, w := range widths {
		n, err := strconv.Atoi(string(digits[off : off+w]))
		if err != nil {
			return time.Time{}
		}
		fields[i] = n
		off += w
	}
	if fields[0] == 0 {
		return time.Time{}
	}
	zone := gmtOffsetZone(int8(b[16]))
	return time.Date(fields[0], time.Month(fields[1]), fields[2], fields[3], fields[4], fields[5],
		fields[6]*10*int(time.Millisecond), zone)
}

// parseRecordDate decodes the 7-byte directory record form.
func parseRecordDate(b []byte) time.Time {
	if len(b) < 7 || bytes.Count(b[:6], []byte{0}) == 6 {
		return time.Time{}
	}
	return time.Date(1900+int(b[0]), time.Month(b[1]), int(b[2]), int(b[3]), int(b[4]), int(b[5]), 0,
		gmtOffsetZone(int8(b[6])))
}

// gmtOffsetZone converts an offset counted in 15 minute intervals.
func gmtOffsetZone(quarters int8) *time.Location {
	if quarters == 0 {
		return time.UTC
	}
	return time.FixedZone("", int(quarters)*15*60)
}
