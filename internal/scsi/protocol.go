package scsi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Bulk-Only transport framing.
const (
	CBWSignature = 0x43425355 // "USBC"
	CSWSignature = 0x53425355 // "USBS"
	CBWSize      = 31
	CSWSize      = 13
	maxCDBLength = 16
)

// Transfer directions carried in the CBW flags byte.
const (
	DirectionOut = 0x00
	DirectionIn  = 0x80
)

// CSW status values.
const (
	StatusPassed     = 0x00
	StatusFailed     = 0x01
	StatusPhaseError = 0x02
)

var (
	ErrShortCSW     = errors.New("csw too short")
	ErrCSWSignature = errors.New("invalid csw signature")
	ErrCSWTag       = errors.New("csw tag mismatch")
)

// CSW is a decoded Command Status Wrapper.
type CSW struct {
	Tag     uint32
	Residue uint32
	Status  byte
}

// BuildCBW wraps a CDB in a 31-byte Command Block Wrapper addressed to LUN 0.
func BuildCBW(tag uint32, dataLen uint32, direction byte, cdb []byte) []byte {
	cbw := make([]byte, CBWSize)
	binary.LittleEndian.PutUint32(cbw[0:4], CBWSignature)
	binary.LittleEndian.PutUint32(cbw[4:8], tag)
	binary.LittleEndian.PutUint32(cbw[8:12], dataLen)
	cbw[12] = direction
	n := min(len(cdb), maxCDBLength)
	cbw[14] = byte(n)
	copy(cbw[15:15+n], cdb[:n])
	return cbw
}

// ParseCSW decodes a 13-byte Command Status Wrapper.
func ParseCSW(data []byte) (CSW, error) {
	if len(data) < CSWSize {
		return CSW{}, fmt.Errorf("%w: %d bytes", ErrShortCSW, len(data))
	}
	if sig := binary.LittleEndian.Uint32(data[0:4]); sig != CSWSignature {
		return CSW{}, fmt.Errorf("%w: 0x%08x", ErrCSWSignature, sig)
	}
	return CSW{
		Tag:     binary.LittleEndian.Uint32(data[4:8]),
		Residue: binary.LittleEndian.Uint32(data[8:12]),
		Status:  data[12],
	}, nil
}
