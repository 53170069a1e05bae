package disc

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"slipstream/internal/iso9660"
)

// VideoDir is the DVD-Video directory holding IFO, BUP, and VOB files.
const VideoDir = "/VIDEO_TS"

// TitleRange is the inclusive sector extent of one VOB file.
type TitleRange struct {
	File  string `json:"file"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Sectors returns the number of sectors in the range.
func (r TitleRange) Sectors() int {
	return r.End - r.Start + 1
}

// Contains reports whether lba falls inside the range.
func (r TitleRange) Contains(lba int) bool {
	return lba >= r.Start && lba <= r.End
}

// ComputeTitleRanges enumerates the VOB files under VIDEO_TS in directory
// order; a volume without VIDEO_TS has none. With crack set, a
// key-establishing seek is issued at each file's first sector; a seek that
// fails or lands elsewhere aborts with a *KeyCrackError. The returned
// position is where the device was left, or -1 when no seek was issued.
func ComputeTitleRanges(fsys *iso9660.FileSystem, dev Device, crack bool) ([]TitleRange, int, error) {
	var ranges []TitleRange
	pos := -1
	for entry, err := range fsys.List(VideoDir, true) {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, pos, nil
		}
		if err != nil {
			return nil, pos, fmt.Errorf("list %s: %w", VideoDir, err)
		}
		if entry.Dir || !strings.HasSuffix(entry.Name(), ".VOB") {
			continue
		}
		if crack {
			actual, err := dev.Seek(entry.LBA, SeekKey)
			if err != nil {
				return nil, pos, &KeyCrackError{File: entry.Name(), LBA: entry.LBA, Actual: actual, Err: err}
			}
			pos = actual
			if actual != entry.LBA {
				return nil, pos, &KeyCrackError{File: entry.Name(), LBA: entry.LBA, Actual: actual}
			}
		}
		ranges = append(ranges, TitleRange{
			File:  entry.Name(),
			Start: entry.LBA,
			End:   entry.LBA + entry.Sectors - 1,
		})
	}
	return ranges, pos, nil
}
