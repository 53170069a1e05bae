package iso9660

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"path"
	"strings"
	"time"
)

// ErrNotDirectory is returned when a listing is requested for a file.
var ErrNotDirectory = errors.New("not a directory")

// Entry describes a file or directory found while walking the volume.
type Entry struct {
	Path     string
	LBA      int
	Sectors  int
	Size     int64
	Dir      bool
	Recorded time.Time
}

// Name returns the final path component.
func (e Entry) Name() string {
	return path.Base(e.Path)
}

// FileSystem walks directory records through an io.ReaderAt.
type FileSystem struct {
	r   io.ReaderAt
	pvd VolumeDescriptor
}

// Open reads the volume descriptor and prepares the walker.
func Open(r io.ReaderAt) (*FileSystem, error) {
	pvd, err := ReadVolumeDescriptor(r)
	if err != nil {
		return nil, err
	}
	return NewFileSystem(r, pvd), nil
}

// NewFileSystem builds a walker around an already parsed descriptor.
func NewFileSystem(r io.ReaderAt, pvd VolumeDescriptor) *FileSystem {
	return &FileSystem{r: r, pvd: pvd}
}

// Descriptor returns the primary volume descriptor.
func (f *FileSystem) Descriptor() VolumeDescriptor {
	return f.pvd
}

// List yields the children of dir. Each call walks again from the root
// directory record, so the sequence may be ranged over any number of times.
// When stripVersions is false the ";N" suffix is kept in reported paths.
func (f *FileSystem) List(dir string, stripVersions bool) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		dirPath, rec, err := f.resolve(dir)
		if err != nil {
			yield(Entry{}, err)
			return
		}
		if !rec.IsDir() {
			yield(Entry{}, fmt.Errorf("%s: %w", dir, ErrNotDirectory))
			return
		}
		for child, err := range f.records(rec) {
			if err != nil {
				yield(Entry{}, err)
				return
			}
			name := child.Identifier
			if stripVersions {
				name = StripVersion(name)
			}
			if !yield(f.entry(path.Join(dirPath, name), child), nil) {
				return
			}
		}
	}
}

// Walk yields every entry below dir, depth first.
func (f *FileSystem) Walk(dir string, stripVersions bool) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		f.walk(dir, stripVersions, yield)
	}
}

func (f *FileSystem) walk(dir string, stripVersions bool, yield func(Entry, error) bool) bool {
	for entry, err := range f.List(dir, stripVersions) {
		if err != nil {
			return yield(Entry{}, err)
		}
		if !yield(entry, nil) {
			return false
		}
		if entry.Dir {
			if !f.walk(entry.Path, stripVersions, yield) {
				return false
			}
		}
	}
	return true
}

// Lookup resolves a single path. Components are matched without version
// suffixes and without regard to case.
func (f *FileSystem) Lookup(name string) (Entry, error) {
	resolved, rec, err := f.resolve(name)
	if err != nil {
		return Entry{}, err
	}
	return f.entry(resolved, rec), nil
}

// ReadFile returns at most limit bytes from the start of the named file. A
// negative limit reads the whole file.
func (f *FileSystem) ReadFile(name string, limit int64) ([]byte, error) {
	entry, err := f.Lookup(name)
	if err != nil {
		return nil, err
	}
	if entry.Dir {
		return nil, fmt.Errorf("%s: is a directory", name)
	}
	size := entry.Size
	if limit >= 0 && size > limit {
		size = limit
	}
	buf := make([]byte, size)
	n, err := f.r.ReadAt(buf, int64(entry.LBA)*int64(f.pvd.SectorSize))
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == size) {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return buf, nil
}

// resolve walks from the root to name and returns the record together with
// its version-stripped absolute path.
func (f *FileSystem) resolve(name string) (string, Record, error) {
	cleaned := path.Clean("/" + name)
	rec := f.pvd.Root
	resolved := "/"
	if cleaned == "/" {
		return resolved, rec, nil
	}
	for _, part := range strings.Split(cleaned[1:], "/") {
		if !rec.IsDir() {
			return "", Record{}, fmt.Errorf("%s: %w", resolved, ErrNotDirectory)
		}
		next, ok, err := f.findChild(rec, part)
		if err != nil {
			return "", Record{}, err
		}
		if !ok {
			return "", Record{}, fmt.Errorf("%s: %w", cleaned, fs.ErrNotExist)
		}
		resolved = path.Join(resolved, StripVersion(next.Identifier))
		rec = next
	}
	return resolved, rec, nil
}

func (f *FileSystem) findChild(dir Record, name string) (Record, bool, error) {
	for child, err := range f.records(dir) {
		if err != nil {
			return Record{}, false, err
		}
		if strings.EqualFold(StripVersion(child.Identifier), StripVersion(name)) {
			return child, true, nil
		}
	}
	return Record{}, false, nil
}

// records yields the directory's records sector by sector, skipping the
// self and parent entries. A zero length byte pads out the rest of a sector.
func (f *FileSystem) records(dir Record) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		sectorSize := f.pvd.SectorSize
		sectors := (int(dir.DataLength) + sectorSize - 1) / sectorSize
		buf := make([]byte, sectorSize)
		for i := 0; i < sectors; i++ {
			lba := int64(dir.Extent) + int64(i)
			if _, err := f.r.ReadAt(buf, lba*int64(sectorSize)); err != nil && !errors.Is(err, io.EOF) {
				yield(Record{}, fmt.Errorf("read directory sector %d: %w", lba, err))
				return
			}
			for off := 0; off < sectorSize; {
				if buf[off] == 0 {
					break
				}
				rec, length, err := parseRecord(buf[off:])
				if err != nil {
					yield(Record{}, fmt.Errorf("directory at sector %d offset %d: %w", lba, off, err))
					return
				}
				off += length
				if rec.isSelfOrParent() {
					continue
				}
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

func (f *FileSystem) entry(p string, rec Record) Entry {
	return Entry{
		Path:     p,
		LBA:      int(rec.Extent),
		Sectors:  int(rec.DataLength) / f.pvd.SectorSize,
		Size:     int64(rec.DataLength),
		Dir:      rec.IsDir(),
		Recorded: rec.Recorded,
	}
}
