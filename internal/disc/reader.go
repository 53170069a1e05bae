package disc

import (
	"fmt"
	"slices"
)

// StreamReader turns (first, count) requests into device seeks and reads,
// choosing the seek mode and decryption from the installed title ranges.
// It is not safe for concurrent use.
//
// A run that starts on a title's last sector is clamped to that one sector,
// which also covers single-sector titles.
//
// Known limitation: only a read that starts exactly on a title's first
// sector re-establishes that title's key. A seek into the middle of a title
// uses SeekMPEG and relies on whatever key context the device already holds.
type StreamReader struct {
	dev         Device
	sectorCount int
	titles      []TitleRange
	pos         int
	buf         []byte
}

// NewStreamReader creates a reader over dev bounded by sectorCount.
func NewStreamReader(dev Device, sectorCount int) *StreamReader {
	return &StreamReader{dev: dev, sectorCount: sectorCount}
}

// SetTitles installs the title ranges consulted by Read.
func (r *StreamReader) SetTitles(titles []TitleRange) {
	r.titles = slices.Clone(titles)
}

// SetPosition records where the device currently sits.
func (r *StreamReader) SetPosition(lba int) {
	r.pos = lba
}

// Position is the sector the next sequential read starts at.
func (r *StreamReader) Position() int {
	return r.pos
}

// Reset forgets the title ranges and rewinds the cursor.
func (r *StreamReader) Reset() {
	r.pos = 0
	r.titles = nil
}

// Read reads up to requested sectors starting at first. A run never crosses
// a title boundary: it is cut short before a title start and after a title
// end, so each returned run is either wholly inside one title (decrypted) or
// wholly outside every title (raw).
//
// The returned slice aliases an internal buffer and is valid until the next
// call to Read.
func (r *StreamReader) Read(first, requested int) (int, []byte, error) {
	if first < 0 || requested <= 0 {
		return 0, nil, fmt.Errorf("%w: first=%d requested=%d", ErrInvalidRequest, first, requested)
	}
	if first >= r.sectorCount {
		return 0, nil, &ReadLengthError{First: first, Requested: requested, Actual: 0}
	}
	requested = min(requested, r.sectorCount-first)

	needSeek := first != r.pos || first == 0
	inTitle, entered := false, false
	for _, t := range r.titles {
		if t.Start == first {
			entered, needSeek, inTitle = true, true, true
		}
		if first < t.Start && t.Start < first+requested {
			requested = t.Start - first
		}
		if first <= t.End && t.End < first+requested {
			requested = t.End - first + 1
		}
		if first >= t.Start && first+requested-1 <= t.End {
			inTitle = true
		}
	}

	if needSeek {
		mode := SeekPlain
		switch {
		case entered:
			mode = SeekKey
		case inTitle:
			mode = SeekMPEG
		}
		actual, err := r.dev.Seek(first, mode)
		r.pos = actual
		if err != nil {
			return 0, nil, Wrap(ErrIOFailure, fmt.Sprintf("%s seek to sector %d", mode, first), "", err)
		}
		if actual != first {
			return 0, nil, &SeekError{Requested: first, Actual: actual}
		}
	}

	if need := requested * SectorSize; cap(r.buf) < need {
		r.buf = make([]byte, need)
	}
	buf := r.buf[:requested*SectorSize]
	actual, err := r.dev.Read(buf, requested, inTitle)
	if err != nil {
		return 0, nil, Wrap(ErrIOFailure, fmt.Sprintf("read %d sectors at %d", requested, first), "", err)
	}
	if actual != requested {
		endOfVolume := first+requested >= r.sectorCount && first+actual == r.sectorCount-1
		if !endOfVolume {
			return 0, nil, &ReadLengthError{First: first, Requested: requested, Actual: actual}
		}
	}
	r.pos += actual
	return actual, buf[:actual*SectorSize], nil
}
