package discid

import (
	"encoding/binary"
	"fmt"
	"hash/crc64"
	"io"
	"slices"
	"strings"
	"time"

	"slipstream/internal/iso9660"
)

const (
	// Polynomial is the reflected CRC-64 polynomial used by the WMC DVD id.
	Polynomial = 0x92c64265d32139a4

	videoDir     = "/VIDEO_TS"
	maxIFORead   = 0x10000
	filetimeBase = 11644473600 * 10000000
)

var ifoFiles = []string{"VIDEO_TS.IFO", "VTS_01_0.IFO"}

var table = crc64.MakeTable(Polynomial)

// ID is a 64-bit disc identifier.
type ID uint64

// String renders the id as two 32-bit halves, high first.
func (id ID) String() string {
	return fmt.Sprintf("%08x|%08x", uint32(id>>32), uint32(id))
}

// Identifier computes a disc id from a volume.
type Identifier interface {
	Compute(r io.ReaderAt) (ID, error)
}

// WMC is the Windows Media Center DVD id.
type WMC struct{}

// Compute hashes the VIDEO_TS listing and IFO headers found on r.
func (WMC) Compute(r io.ReaderAt) (ID, error) {
	fs, err := iso9660.Open(r)
	if err != nil {
		return 0, fmt.Errorf("disc id: %w", err)
	}
	return ComputeFS(fs)
}

// ComputeFS is Compute over an already opened filesystem.
func ComputeFS(fs *iso9660.FileSystem) (ID, error) {
	var files []iso9660.Entry
	for entry, err := range fs.List(videoDir, true) {
		if err != nil {
			return 0, fmt.Errorf("disc id: list %s: %w", videoDir, err)
		}
		if entry.Dir {
			continue
		}
		files = append(files, entry)
	}
	slices.SortFunc(files, func(a, b iso9660.Entry) int {
		return strings.Compare(strings.ToUpper(a.Name()), strings.ToUpper(b.Name()))
	})

	h := newHash()
	var scratch [8]byte
	for _, f := range files {
		binary.LittleEndian.PutUint64(scratch[:], Filetime(f.Recorded))
		h.write(scratch[:8])
		binary.LittleEndian.PutUint32(scratch[:4], uint32(f.Size))
		h.write(scratch[:4])
		h.write([]byte(strings.ToUpper(f.Name())))
		h.write([]byte{0})
	}
	for _, name := range ifoFiles {
		data, err := fs.ReadFile(videoDir+"/"+name, maxIFORead)
		if err != nil {
			return 0, fmt.Errorf("disc id: %w", err)
		}
		h.write(data)
	}
	return h.sum(), nil
}

// Filetime converts t to 100ns intervals since 1601-01-01 UTC. The zero time
// maps to zero.
func Filetime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano()/100 + filetimeBase)
}

// hash keeps the complemented register that crc64.Update expects, so the
// register starts at all ones and is returned without a final inversion.
type hash struct {
	crc uint64
}

func newHash() *hash {
	return &hash{}
}

func (h *hash) write(p []byte) {
	h.crc = crc64.Update(h.crc, table, p)
}

func (h *hash) sum() ID {
	return ID(^h.crc)
}

// Checksum returns the WMC CRC-64 of data alone.
func Checksum(data []byte) uint64 {
	h := newHash()
	h.write(data)
	return uint64(h.sum())
}
