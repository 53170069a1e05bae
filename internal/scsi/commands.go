package scsi

import (
	"encoding/binary"
	"strings"
)

// MMC opcodes used by the DVD backend.
const (
	OpTestUnitReady     = 0x00
	OpInquiry           = 0x12
	OpReadCapacity      = 0x25
	OpRead12            = 0xA8
	OpReadDiscStructure = 0xAD
)

// BlockSize is the DVD data sector size.
const BlockSize = 2048

const (
	structureCopyright = 0x01
	copyrightReplyLen  = 8
	inquiryReplyLen    = 36
	capacityReplyLen   = 8
)

// BuildTestUnitReady returns the 6-byte TEST UNIT READY CDB.
func BuildTestUnitReady() []byte {
	return []byte{OpTestUnitReady, 0, 0, 0, 0, 0}
}

// BuildInquiry returns a 6-byte INQUIRY CDB asking for the standard 36 bytes.
func BuildInquiry() []byte {
	return []byte{OpInquiry, 0, 0, 0, inquiryReplyLen, 0}
}

// BuildReadCapacity returns the 10-byte READ CAPACITY CDB.
func BuildReadCapacity() []byte {
	return []byte{OpReadCapacity, 0, 0, 0, 0, 0, 0, 0, 0, 0}
}

// BuildRead12 returns a READ(12) CDB for count blocks starting at lba.
func BuildRead12(lba uint32, count uint32) []byte {
	cdb := make([]byte, 12)
	cdb[0] = OpRead12
	binary.BigEndian.PutUint32(cdb[2:6], lba)
	binary.BigEndian.PutUint32(cdb[6:10], count)
	return cdb
}

// BuildReadCopyright returns a READ DISC STRUCTURE CDB for the copyright
// information of layer 0.
func BuildReadCopyright() []byte {
	cdb := make([]byte, 12)
	cdb[0] = OpReadDiscStructure
	cdb[7] = structureCopyright
	binary.BigEndian.PutUint16(cdb[8:10], copyrightReplyLen)
	return cdb
}

// InquiryData is the decoded standard INQUIRY reply.
type InquiryData struct {
	DeviceType byte
	Vendor     string
	Product    string
	Revision   string
}

// ParseInquiry decodes a 36-byte INQUIRY reply.
func ParseInquiry(data []byte) InquiryData {
	if len(data) < inquiryReplyLen {
		return InquiryData{}
	}
	return InquiryData{
		DeviceType: data[0] & 0x1F,
		Vendor:     strings.TrimRight(string(data[8:16]), " "),
		Product:    strings.TrimRight(string(data[16:32]), " "),
		Revision:   strings.TrimRight(string(data[32:36]), " "),
	}
}

// Capacity is the decoded READ CAPACITY reply.
type Capacity struct {
	LastLBA   uint32
	BlockSize uint32
}

// Blocks returns the number of addressable blocks.
func (c Capacity) Blocks() int {
	return int(c.LastLBA) + 1
}

// ParseCapacity decodes an 8-byte READ CAPACITY reply.
func ParseCapacity(data []byte) (Capacity, bool) {
	if len(data) < capacityReplyLen {
		return Capacity{}, false
	}
	return Capacity{
		LastLBA:   binary.BigEndian.Uint32(data[0:4]),
		BlockSize: binary.BigEndian.Uint32(data[4:8]),
	}, true
}

// ParseCopyright reports whether the copyright structure names a protection
// system. Byte 4 carries the protection type (1 for CSS, 2 for CPRM).
func ParseCopyright(data []byte) (protected bool, ok bool) {
	if len(data) < 5 {
		return false, false
	}
	return data[4] != 0, true
}
