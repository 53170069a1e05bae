package discid_test

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"slipstream/internal/discid"
	"slipstream/internal/testsupport"
)

func bitwiseCRC(data []byte) uint64 {
	reg := ^uint64(0)
	for _, b := range data {
		reg ^= uint64(b)
		for range 8 {
			if reg&1 != 0 {
				reg = reg>>1 ^ discid.Polynomial
			} else {
				reg >>= 1
			}
		}
	}
	return reg
}

func TestChecksumMatchesBitwiseReference(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte("VIDEO_TS.IFO\x00"),
		bytes.Repeat([]byte{0xa5, 0x17, 0x00}, 5000),
	}
	for _, in := range inputs {
		if got, want := discid.Checksum(in), bitwiseCRC(in); got != want {
			t.Fatalf("Checksum(%d bytes) = %016x, want %016x", len(in), got, want)
		}
	}
	if discid.Checksum(nil) != ^uint64(0) {
		t.Fatal("empty input should leave the register at its initial value")
	}
}

func TestIDString(t *testing.T) {
	id := discid.ID(0x0123456789abcdef)
	if got := id.String(); got != "01234567|89abcdef" {
		t.Fatalf("unexpected id string %q", got)
	}
	if got := discid.ID(0x1).String(); got != "00000000|00000001" {
		t.Fatalf("unexpected padded id string %q", got)
	}
}

func TestFiletime(t *testing.T) {
	epoch := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := discid.Filetime(epoch); got != 116444736000000000 {
		t.Fatalf("unix epoch filetime = %d", got)
	}
	if discid.Filetime(time.Time{}) != 0 {
		t.Fatal("zero time should map to zero")
	}
}

func expectedID(t *testing.T, img *testsupport.DiscImage, files []testsupport.ImageFile, created time.Time) uint64 {
	t.Helper()
	var buf bytes.Buffer
	sorted := append([]testsupport.ImageFile(nil), files...)
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			if strings.ToUpper(sorted[j].Name) < strings.ToUpper(sorted[i].Name) {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	var scratch [8]byte
	for _, f := range sorted {
		recorded := f.Recorded
		if recorded.IsZero() {
			recorded = created
		}
		binary.LittleEndian.PutUint64(scratch[:], discid.Filetime(recorded))
		buf.Write(scratch[:8])
		binary.LittleEndian.PutUint32(scratch[:4], uint32(f.Sectors*2048))
		buf.Write(scratch[:4])
		buf.WriteString(f.Name)
		buf.WriteByte(0)
	}
	for _, name := range []string{"VIDEO_TS.IFO", "VTS_01_0.IFO"} {
		for _, f := range files {
			if f.Name == name {
				start := f.LBA * 2048
				buf.Write(img.Bytes[start : start+f.Sectors*2048])
			}
		}
	}
	return bitwiseCRC(buf.Bytes())
}

func TestWMCComputeOverImage(t *testing.T) {
	created := time.Date(2004, time.March, 9, 12, 30, 15, 0, time.UTC)
	files := testsupport.DefaultVideoFiles()
	img := testsupport.BuildImage(t, testsupport.ImageSpec{VolumeID: "TEST_DISC", Sectors: 80, Files: files, Created: created})

	id, err := discid.WMC{}.Compute(bytes.NewReader(img.Bytes))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if want := expectedID(t, img, files, created); uint64(id) != want {
		t.Fatalf("id = %s, want %s", id, discid.ID(want))
	}

	again, err := discid.WMC{}.Compute(bytes.NewReader(img.Bytes))
	if err != nil {
		t.Fatalf("second Compute: %v", err)
	}
	if again != id {
		t.Fatalf("id not stable: %s then %s", id, again)
	}
}

func TestWMCComputeChangesWithRecordDate(t *testing.T) {
	files := testsupport.DefaultVideoFiles()
	base := testsupport.BuildImage(t, testsupport.ImageSpec{VolumeID: "A", Sectors: 80, Files: files})

	files[3].Recorded = time.Date(2010, time.June, 1, 0, 0, 0, 0, time.UTC)
	changed := testsupport.BuildImage(t, testsupport.ImageSpec{VolumeID: "A", Sectors: 80, Files: files})

	a, err := discid.WMC{}.Compute(bytes.NewReader(base.Bytes))
	if err != nil {
		t.Fatalf("Compute base: %v", err)
	}
	b, err := discid.WMC{}.Compute(bytes.NewReader(changed.Bytes))
	if err != nil {
		t.Fatalf("Compute changed: %v", err)
	}
	if a == b {
		t.Fatal("expected a different id when a file date changes")
	}
}

func TestWMCComputeMissingTitleSetIFO(t *testing.T) {
	var files []testsupport.ImageFile
	for _, f := range testsupport.DefaultVideoFiles() {
		if f.Name != "VTS_01_0.IFO" {
			files = append(files, f)
		}
	}
	img := testsupport.BuildImage(t, testsupport.ImageSpec{VolumeID: "NOVTS", Sectors: 80, Files: files})
	if _, err := (discid.WMC{}).Compute(bytes.NewReader(img.Bytes)); err == nil {
		t.Fatal("expected error when VTS_01_0.IFO is absent")
	}
}
