package testsupport

import (
	"encoding/binary"
	"fmt"
	"slices"
	"testing"
	"time"
)

const sectorSize = 2048

const (
	firstDataLBA = 21
	rootLBA      = 18
	videoTSLBA   = 19
	audioTSLBA   = 20
)

// ImageFile is a file placed under /VIDEO_TS in a synthetic image.
type ImageFile struct {
	Name     string
	LBA      int
	Sectors  int
	Recorded time.Time
}

// ImageSpec describes a synthetic DVD-Video volume.
type ImageSpec struct {
	VolumeID string
	Sectors  int
	Files    []ImageFile
	Created  time.Time

	// NoVideoTS leaves VIDEO_TS out of the root directory. Files must be empty.
	NoVideoTS bool
}

// Extent is an inclusive sector range.
type Extent struct {
	Start int
	End   int
}

// DiscImage is a built image together with the extents of its VOB files.
type DiscImage struct {
	Bytes  []byte
	Titles []Extent
}

// Sectors reports the image length in sectors.
func (d *DiscImage) Sectors() int {
	return len(d.Bytes) / sectorSize
}

// DefaultVideoFiles lays out a small two-title DVD after the directory sectors.
// The VOBs sit at 30..39 and 50..51 with IFO/BUP files filling the gaps.
func DefaultVideoFiles() []ImageFile {
	return []ImageFile{
		{Name: "VIDEO_TS.IFO", LBA: 21, Sectors: 2},
		{Name: "VIDEO_TS.BUP", LBA: 23, Sectors: 2},
		{Name: "VTS_01_0.IFO", LBA: 25, Sectors: 3},
		{Name: "VTS_01_1.VOB", LBA: 30, Sectors: 10},
		{Name: "VTS_01_2.VOB", LBA: 50, Sectors: 2},
		{Name: "VTS_01_0.BUP", LBA: 60, Sectors: 3},
	}
}

// BuildImage assembles an ISO-9660 image sector by sector. Every sector
// outside the metadata area carries PatternByte content so reads can be
// checked byte for byte.
func BuildImage(t testing.TB, spec ImageSpec) *DiscImage {
	t.Helper()

	if spec.Sectors <= firstDataLBA {
		t.Fatalf("image needs more than %d sectors, got %d", firstDataLBA, spec.Sectors)
	}
	if spec.NoVideoTS && len(spec.Files) > 0 {
		t.Fatalf("image without VIDEO_TS cannot hold video files")
	}
	if spec.Created.IsZero() {
		spec.Created = time.Date(2004, time.March, 9, 12, 30, 15, 0, time.UTC)
	}

	img := make([]byte, spec.Sectors*sectorSize)
	for lba := 0; lba < spec.Sectors; lba++ {
		FillSector(img[lba*sectorSize:(lba+1)*sectorSize], lba)
	}

	files := slices.Clone(spec.Files)
	var titles []Extent
	for _, f := range files {
		if f.LBA < firstDataLBA || f.LBA+f.Sectors > spec.Sectors {
			t.Fatalf("file %s at %d+%d outside data area", f.Name, f.LBA, f.Sectors)
		}
		if len(f.Name) > 4 && f.Name[len(f.Name)-4:] == ".VOB" {
			titles = append(titles, Extent{Start: f.LBA, End: f.LBA + f.Sectors - 1})
		}
	}
	slices.SortFunc(titles, func(a, b Extent) int { return a.Start - b.Start })

	writePVD(sector(img, 16), spec)
	writeTerminator(sector(img, 17))

	root := sector(img, rootLBA)
	clear(root)
	off := putRecord(root, "\x00", rootLBA, sectorSize, 0x02, spec.Created)
	off += putRecord(root[off:], "\x01", rootLBA, sectorSize, 0x02, spec.Created)
	off += putRecord(root[off:], "AUDIO_TS", audioTSLBA, sectorSize, 0x02, spec.Created)
	if !spec.NoVideoTS {
		putRecord(root[off:], "VIDEO_TS", videoTSLBA, sectorSize, 0x02, spec.Created)
	}

	audio := sector(img, audioTSLBA)
	clear(audio)
	off = putRecord(audio, "\x00", audioTSLBA, sectorSize, 0x02, spec.Created)
	putRecord(audio[off:], "\x01", rootLBA, sectorSize, 0x02, spec.Created)

	video := sector(img, videoTSLBA)
	clear(video)
	off = putRecord(video, "\x00", videoTSLBA, sectorSize, 0x02, spec.Created)
	off += putRecord(video[off:], "\x01", rootLBA, sectorSize, 0x02, spec.Created)
	for _, f := range files {
		recorded := f.Recorded
		if recorded.IsZero() {
			recorded = spec.Created
		}
		n := putRecord(video[off:], f.Name+";1", uint32(f.LBA), uint32(f.Sectors*sectorSize), 0, recorded)
		if n == 0 {
			t.Fatalf("VIDEO_TS directory overflowed one sector")
		}
		off += n
	}

	return &DiscImage{Bytes: img, Titles: titles}
}

// FillSector writes the deterministic content used for data sectors.
func FillSector(dst []byte, lba int) {
	for i := range dst {
		dst[i] = PatternByte(lba, i)
	}
}

// PatternByte is the content of byte i within sector lba.
func PatternByte(lba, i int) byte {
	return byte(lba*31 + i*7 + (i >> 8))
}

func sector(img []byte, lba int) []byte {
	return img[lba*sectorSize : (lba+1)*sectorSize]
}

func writePVD(dst []byte, spec ImageSpec) {
	clear(dst)
	dst[0] = 1
	copy(dst[1:6], "CD001")
	dst[6] = 1
	padString(dst[8:40], "SLIPSTREAM TEST")
	padString(dst[40:72], spec.VolumeID)
	putBoth32(dst[80:88], uint32(spec.Sectors))
	putBoth16(dst[120:124], 1)
	putBoth16(dst[124:128], 1)
	putBoth16(dst[128:132], sectorSize)
	putBoth32(dst[132:140], 10)
	binary.LittleEndian.PutUint32(dst[140:144], 0)
	binary.BigEndian.PutUint32(dst[148:152], 0)
	putRecord(dst[156:190], "\x00", rootLBA, sectorSize, 0x02, spec.Created)
	padString(dst[190:318], spec.VolumeID)
	padString(dst[318:446], "")
	padString(dst[446:574], "")
	padString(dst[574:702], "SLIPSTREAM")
	padString(dst[702:739], "")
	padString(dst[739:776], "")
	padString(dst[776:813], "")
	putVolumeDate(dst[813:830], spec.Created)
	putVolumeDate(dst[830:847], spec.Created)
	putVolumeDate(dst[847:864], time.Time{})
	putVolumeDate(dst[864:881], time.Time{})
	dst[881] = 1
}

func writeTerminator(dst []byte) {
	clear(dst)
	dst[0] = 255
	copy(dst[1:6], "CD001")
	dst[6] = 1
}

// putRecord writes a directory record and returns its length, or 0 when it
// does not fit.
func putRecord(dst []byte, name string, extent, length uint32, flags byte, recorded time.Time) int {
	recLen := 33 + len(name)
	if recLen%2 == 1 {
		recLen++
	}
	if recLen > len(dst) {
		return 0
	}
	dst[0] = byte(recLen)
	putBoth32(dst[2:10], extent)
	putBoth32(dst[10:18], length)
	if !recorded.IsZero() {
		_, offset := recorded.Zone()
		dst[18] = byte(recorded.Year() - 1900)
		dst[19] = byte(recorded.Month())
		dst[20] = byte(recorded.Day())
		dst[21] = byte(recorded.Hour())
		dst[22] = byte(recorded.Minute())
		dst[23] = byte(recorded.Second())
		dst[24] = byte(int8(offset / 900))
	}
	dst[25] = flags
	putBoth16(dst[28:32], 1)
	dst[32] = byte(len(name))
	copy(dst[33:], name)
	return recLen
}

func putVolumeDate(dst []byte, t time.Time) {
	if t.IsZero() {
		copy(dst, "0000000000000000")
		dst[16] = 0
		return
	}
	_, offset := t.Zone()
	copy(dst, fmt.Sprintf("%04d%02d%02d%02d%02d%02d%02d", t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/int(10*time.Millisecond)))
	dst[16] = byte(int8(offset / 900))
}

func padString(dst []byte, s string) {
	for i := range dst {
		dst[i] = ' '
	}
	copy(dst, s)
}

func putBoth16(dst []byte, v uint16) {
	binary.LittleEndian.PutUint16(dst[0:2], v)
	binary.BigEndian.PutUint16(dst[2:4], v)
}

func putBoth32(dst []byte, v uint32) {
	binary.LittleEndian.PutUint32(dst[0:4], v)
	binary.BigEndian.PutUint32(dst[4:8], v)
}
