package testsupport

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"slipstream/internal/disc"
)

// ScrambleMask is XORed into title sectors that are read without the
// matching title key.
const ScrambleMask = 0x5a

// SeekCall records one Seek issued against a FakeDevice.
type SeekCall struct {
	LBA    int
	Mode   disc.SeekMode
	Landed int
}

// ReadCall records one stream Read issued against a FakeDevice.
type ReadCall struct {
	First   int
	Sectors int
	Decrypt bool
	Actual  int
}

// FakeDevice is a scripted disc.Device backed by an in-memory image.
//
// When Scrambled is set, sectors inside Titles come back masked unless they
// are read with decrypt while the key for that title is current. A key
// becomes current when a SeekKey lands exactly on the title's first sector.
type FakeDevice struct {
	Image     []byte
	Titles    []Extent
	Scrambled bool

	// SeekLands overrides where a seek to the given sector lands.
	SeekLands map[int]int
	// SeekErrors fails seeks to the given sector.
	SeekErrors map[int]error
	// ShortReads caps the sectors returned by a read starting at the given sector.
	ShortReads map[int]int
	// ReadErrors fails reads starting at the given sector.
	ReadErrors map[int]error

	mu     sync.Mutex
	pos    int
	key    int
	seeks  []SeekCall
	reads  []ReadCall
	closed int
}

// NewFakeDevice wraps a built image.
func NewFakeDevice(img *DiscImage, scrambled bool) *FakeDevice {
	return &FakeDevice{
		Image:     img.Bytes,
		Titles:    slices.Clone(img.Titles),
		Scrambled: scrambled,
		key:       -1,
	}
}

func (d *FakeDevice) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(d.Image)) {
		return 0, io.EOF
	}
	n := copy(p, d.Image[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (d *FakeDevice) Seek(lba int, mode disc.SeekMode) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.SeekErrors[lba]; err != nil {
		d.seeks = append(d.seeks, SeekCall{LBA: lba, Mode: mode, Landed: d.pos})
		return d.pos, err
	}
	landed := lba
	if to, ok := d.SeekLands[lba]; ok {
		landed = to
	}
	d.pos = landed
	d.seeks = append(d.seeks, SeekCall{LBA: lba, Mode: mode, Landed: landed})
	if mode == disc.SeekKey && landed == lba {
		if _, ok := d.titleAt(lba); ok {
			d.key = lba
		}
	}
	return landed, nil
}

func (d *FakeDevice) Read(p []byte, sectors int, decrypt bool) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	first := d.pos
	if err := d.ReadErrors[first]; err != nil {
		d.reads = append(d.reads, ReadCall{First: first, Sectors: sectors, Decrypt: decrypt})
		return 0, err
	}
	if len(p) < sectors*sectorSize {
		return 0, fmt.Errorf("fake device: buffer too small for %d sectors", sectors)
	}
	n := max(0, min(sectors, len(d.Image)/sectorSize-first))
	if limit, ok := d.ShortReads[first]; ok && limit < n {
		n = limit
	}
	for i := range n {
		lba := first + i
		dst := p[i*sectorSize : (i+1)*sectorSize]
		copy(dst, d.Image[lba*sectorSize:(lba+1)*sectorSize])
		if d.masked(lba, decrypt) {
			for j := range dst {
				dst[j] ^= ScrambleMask
			}
		}
	}
	d.pos += n
	d.reads = append(d.reads, ReadCall{First: first, Sectors: sectors, Decrypt: decrypt, Actual: n})
	return n, nil
}

func (d *FakeDevice) masked(lba int, decrypt bool) bool {
	if !d.Scrambled {
		return false
	}
	title, ok := d.titleAt(lba)
	if !ok {
		return false
	}
	return !decrypt || d.key != title.Start
}

func (d *FakeDevice) titleAt(lba int) (Extent, bool) {
	for _, t := range d.Titles {
		if lba >= t.Start && lba <= t.End {
			return t, true
		}
	}
	return Extent{}, false
}

func (d *FakeDevice) IsScrambled() bool {
	return d.Scrambled
}

func (d *FakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	if d.closed > 1 {
		return errors.New("fake device: closed twice")
	}
	return nil
}

// Seeks returns the recorded seek calls.
func (d *FakeDevice) Seeks() []SeekCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.seeks)
}

// Reads returns the recorded read calls.
func (d *FakeDevice) Reads() []ReadCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.reads)
}

// Closed reports how many times Close was called.
func (d *FakeDevice) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// ResetLog clears the recorded calls.
func (d *FakeDevice) ResetLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seeks = nil
	d.reads = nil
}
