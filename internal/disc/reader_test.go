package disc_test

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slipstream/internal/disc"
	"slipstream/internal/testsupport"
)

func rawImage(sectors int, titles []disc.TitleRange) *testsupport.DiscImage {
	img := &testsupport.DiscImage{Bytes: make([]byte, sectors*disc.SectorSize)}
	for lba := range sectors {
		testsupport.FillSector(img.Bytes[lba*disc.SectorSize:(lba+1)*disc.SectorSize], lba)
	}
	for _, t := range titles {
		img.Titles = append(img.Titles, testsupport.Extent{Start: t.Start, End: t.End})
	}
	return img
}

func newReader(sectors int, titles []disc.TitleRange, scrambled bool) (*disc.StreamReader, *testsupport.FakeDevice, *testsupport.DiscImage) {
	img := rawImage(sectors, titles)
	dev := testsupport.NewFakeDevice(img, scrambled)
	r := disc.NewStreamReader(dev, sectors)
	r.SetTitles(titles)
	return r, dev, img
}

func TestReadUnscrambledClampsToVolumeEnd(t *testing.T) {
	r, dev, img := newReader(100, nil, false)

	n, data, err := r.Read(0, 200)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, img.Bytes, data)

	seeks := dev.Seeks()
	require.Len(t, seeks, 1)
	assert.Equal(t, testsupport.SeekCall{LBA: 0, Mode: disc.SeekPlain, Landed: 0}, seeks[0])
	reads := dev.Reads()
	require.Len(t, reads, 1)
	assert.False(t, reads[0].Decrypt)
	assert.Equal(t, 100, r.Position())
}

func TestReadStopsBeforeTitleStart(t *testing.T) {
	titles := []disc.TitleRange{{File: "VTS_01_1.VOB", Start: 10, End: 19}}
	r, dev, img := newReader(40, titles, true)

	n, data, err := r.Read(5, 20)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, img.Bytes[5*disc.SectorSize:10*disc.SectorSize], data)

	seeks := dev.Seeks()
	require.Len(t, seeks, 1)
	assert.Equal(t, disc.SeekPlain, seeks[0].Mode)
	assert.False(t, dev.Reads()[0].Decrypt)
}

func TestReadEnteringTitleForcesKeySeek(t *testing.T) {
	titles := []disc.TitleRange{{File: "VTS_01_1.VOB", Start: 10, End: 19}}
	r, dev, img := newReader(40, titles, true)

	_, _, err := r.Read(5, 20)
	require.NoError(t, err)
	require.Equal(t, 10, r.Position())
	dev.ResetLog()

	n, data, err := r.Read(10, 20)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, img.Bytes[10*disc.SectorSize:20*disc.SectorSize], data, "title sectors should come back decrypted")

	seeks := dev.Seeks()
	require.Len(t, seeks, 1, "key seek must be issued even when already positioned")
	assert.Equal(t, disc.SeekKey, seeks[0].Mode)
	assert.True(t, dev.Reads()[0].Decrypt)
	assert.Equal(t, 20, r.Position())
}

func TestReadToleratesShortReadAtVolumeEnd(t *testing.T) {
	r, dev, _ := newReader(150, nil, false)
	dev.ShortReads = map[int]int{50: 99}

	n, data, err := r.Read(50, 100)
	require.NoError(t, err)
	assert.Equal(t, 99, n)
	assert.Len(t, data, 99*disc.SectorSize)
	assert.Equal(t, 149, r.Position())
}

func TestReadRejectsShortReadMidVolume(t *testing.T) {
	r, dev, _ := newReader(400, nil, false)
	dev.ShortReads = map[int]int{100: 50}

	_, _, err := r.Read(100, 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, disc.ErrReadLengthMismatch)

	var lengthErr *disc.ReadLengthError
	require.ErrorAs(t, err, &lengthErr)
	assert.Equal(t, disc.ReadLengthError{First: 100, Requested: 100, Actual: 50}, *lengthErr)
	assert.Equal(t, disc.CategoryBadMedia, disc.Classify(err))
}

func TestReadSeekMismatch(t *testing.T) {
	r, dev, _ := newReader(100, nil, false)
	dev.SeekLands = map[int]int{30: 31}

	_, _, err := r.Read(30, 5)
	var seekErr *disc.SeekError
	require.ErrorAs(t, err, &seekErr)
	assert.Equal(t, 30, seekErr.Requested)
	assert.Equal(t, 31, seekErr.Actual)
	assert.ErrorIs(t, err, disc.ErrSeekMismatch)
}

func TestReadDeviceErrorIsIOFailure(t *testing.T) {
	r, dev, _ := newReader(100, nil, false)
	cause := errors.New("medium error")
	dev.ReadErrors = map[int]error{0: cause}

	_, _, err := r.Read(0, 10)
	assert.ErrorIs(t, err, disc.ErrIOFailure)
	assert.ErrorIs(t, err, cause)
}

func TestReadInvalidRequests(t *testing.T) {
	r, _, _ := newReader(100, nil, false)

	_, _, err := r.Read(-1, 10)
	assert.ErrorIs(t, err, disc.ErrInvalidRequest)
	_, _, err = r.Read(0, 0)
	assert.ErrorIs(t, err, disc.ErrInvalidRequest)
	_, _, err = r.Read(100, 1)
	assert.ErrorIs(t, err, disc.ErrReadLengthMismatch)
}

func TestReadSequentialSkipsSeek(t *testing.T) {
	titles := []disc.TitleRange{{File: "VTS_01_1.VOB", Start: 50, End: 59}}
	r, dev, _ := newReader(100, titles, false)

	_, _, err := r.Read(0, 20)
	require.NoError(t, err)
	_, _, err = r.Read(20, 20)
	require.NoError(t, err)

	seeks := dev.Seeks()
	require.Len(t, seeks, 1, "a read continuing at the current position must not seek")
	assert.Equal(t, 0, seeks[0].LBA)
}

func TestReadSingleSectorTitle(t *testing.T) {
	titles := []disc.TitleRange{{File: "VTS_01_1.VOB", Start: 30, End: 30}}
	r, dev, img := newReader(60, titles, true)

	n, data, err := r.Read(30, 16)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, img.Bytes[30*disc.SectorSize:31*disc.SectorSize], data)
	assert.Equal(t, disc.SeekKey, dev.Seeks()[0].Mode)
	assert.True(t, dev.Reads()[0].Decrypt)
}

func TestReadStartingOnTitleLastSector(t *testing.T) {
	titles := []disc.TitleRange{{File: "VTS_01_1.VOB", Start: 10, End: 20}}
	r, dev, _ := newReader(60, titles, true)

	n, _, err := r.Read(20, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, disc.SeekMPEG, dev.Seeks()[0].Mode)
	assert.True(t, dev.Reads()[0].Decrypt)
}

// Mid-title reads use SeekMPEG and keep whatever key the device holds.
func TestReadMidTitleDoesNotReestablishKey(t *testing.T) {
	titles := []disc.TitleRange{
		{File: "VTS_01_1.VOB", Start: 10, End: 19},
		{File: "VTS_02_1.VOB", Start: 30, End: 39},
	}
	r, dev, img := newReader(60, titles, true)

	_, _, err := r.Read(30, 10)
	require.NoError(t, err)
	dev.ResetLog()

	_, data, err := r.Read(15, 2)
	require.NoError(t, err)
	assert.Equal(t, disc.SeekMPEG, dev.Seeks()[0].Mode)
	assert.NotEqual(t, img.Bytes[15*disc.SectorSize:17*disc.SectorSize], data,
		"sectors of a title whose key was never established stay scrambled")
}

func randomTitles(rng *rand.Rand, sectors int) []disc.TitleRange {
	var titles []disc.TitleRange
	lba := rng.IntN(8)
	for lba < sectors {
		length := 1 + rng.IntN(20)
		end := min(lba+length-1, sectors-1)
		titles = append(titles, disc.TitleRange{File: "T.VOB", Start: lba, End: end})
		lba = end + 1 + rng.IntN(12)
	}
	rng.Shuffle(len(titles), func(i, j int) { titles[i], titles[j] = titles[j], titles[i] })
	return titles
}

func homogeneous(titles []disc.TitleRange, first, last int) bool {
	for _, t := range titles {
		if t.Contains(first) {
			return t.Contains(last)
		}
	}
	for _, t := range titles {
		if t.Start <= last && t.End >= first {
			return false
		}
	}
	return true
}

func TestReadRunsNeverCrossTitleBoundaries(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	const sectors = 300
	for round := range 50 {
		titles := randomTitles(rng, sectors)
		r, dev, _ := newReader(sectors, titles, true)
		for range 40 {
			first := rng.IntN(sectors)
			requested := 1 + rng.IntN(64)
			before := len(dev.Seeks())
			pos := r.Position()

			n, _, err := r.Read(first, requested)
			require.NoError(t, err, "round %d read(%d, %d)", round, first, requested)
			require.Positive(t, n)
			assert.True(t, homogeneous(titles, first, first+n-1),
				"round %d read(%d, %d) returned run %d..%d across a boundary", round, first, requested, first, first+n-1)
			assert.Equal(t, first+n, r.Position())

			isStart := false
			for _, title := range titles {
				isStart = isStart || title.Start == first
			}
			if first == pos && first != 0 && !isStart {
				assert.Len(t, dev.Seeks(), before, "sequential read at %d should not seek", first)
			}
		}
	}
}

func TestBackupStyleStreamDecryptsEveryTitle(t *testing.T) {
	titles := []disc.TitleRange{
		{File: "VTS_01_1.VOB", Start: 30, End: 94},
		{File: "VTS_01_2.VOB", Start: 95, End: 95},
		{File: "VTS_02_1.VOB", Start: 130, End: 200},
	}
	const sectors = 260
	r, _, img := newReader(sectors, titles, true)

	var out []byte
	for cur := 0; cur < sectors; {
		n, data, err := r.Read(cur, min(64, sectors-cur))
		require.NoError(t, err)
		out = append(out, data...)
		cur += n
	}
	assert.Equal(t, img.Bytes, out)
}
