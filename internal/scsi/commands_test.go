package scsi

import (
	"encoding/binary"
	"testing"
)

func TestBuildRead12(t *testing.T) {
	cdb := BuildRead12(0x01020304, 16)
	if len(cdb) != 12 {
		t.Fatalf("CDB length = %d, want 12", len(cdb))
	}
	if cdb[0] != OpRead12 {
		t.Errorf("opcode = 0x%02x, want 0x%02x", cdb[0], OpRead12)
	}
	if lba := binary.BigEndian.Uint32(cdb[2:6]); lba != 0x01020304 {
		t.Errorf("lba = 0x%08x", lba)
	}
	if n := binary.BigEndian.Uint32(cdb[6:10]); n != 16 {
		t.Errorf("count = %d, want 16", n)
	}
}

func TestBuildReadCopyright(t *testing.T) {
	cdb := BuildReadCopyright()
	if cdb[0] != OpReadDiscStructure {
		t.Errorf("opcode = 0x%02x", cdb[0])
	}
	if cdb[7] != 0x01 {
		t.Errorf("format = 0x%02x, want 0x01", cdb[7])
	}
	if n := binary.BigEndian.Uint16(cdb[8:10]); n != 8 {
		t.Errorf("allocation length = %d, want 8", n)
	}
}

func TestParseInquiry(t *testing.T) {
	data := make([]byte, 36)
	data[0] = 0x05
	copy(data[8:16], "HL-DT-ST")
	copy(data[16:32], "DVDRAM GP65NB60 ")
	copy(data[32:36], "PF01")

	info := ParseInquiry(data)
	if info.DeviceType != 5 {
		t.Errorf("device type = %d, want 5", info.DeviceType)
	}
	if info.Vendor != "HL-DT-ST" || info.Product != "DVDRAM GP65NB60" || info.Revision != "PF01" {
		t.Errorf("unexpected inquiry %+v", info)
	}
	if got := ParseInquiry(data[:10]); got != (InquiryData{}) {
		t.Errorf("short reply should decode to zero value, got %+v", got)
	}
}

func TestParseCapacity(t *testing.T) {
	data := make([]byte, 8)
	binary.BigEndian.PutUint32(data[0:4], 2295103)
	binary.BigEndian.PutUint32(data[4:8], 2048)
	capacity, ok := ParseCapacity(data)
	if !ok {
		t.Fatal("expected capacity to parse")
	}
	if capacity.Blocks() != 2295104 || capacity.BlockSize != 2048 {
		t.Errorf("unexpected capacity %+v", capacity)
	}
	if _, ok := ParseCapacity(data[:4]); ok {
		t.Error("short reply should not parse")
	}
}

func TestParseCopyright(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		protected bool
		ok        bool
	}{
		{"css", []byte{0, 6, 0, 0, 1, 0, 0, 0}, true, true},
		{"none", []byte{0, 6, 0, 0, 0, 0, 0, 0}, false, true},
		{"short", []byte{0, 6}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			protected, ok := ParseCopyright(tt.data)
			if protected != tt.protected || ok != tt.ok {
				t.Fatalf("ParseCopyright = (%v, %v), want (%v, %v)", protected, ok, tt.protected, tt.ok)
			}
		})
	}
}
