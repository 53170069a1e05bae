package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	scanBuffer  = 64 * 1024
	maxLineSize = 1024 * 1024
	// DefaultPoll is how often Follow checks the file for new lines.
	DefaultPoll = 250 * time.Millisecond
)

// Filter reports whether a line should be shown. A nil Filter keeps every line.
type Filter func(line string) bool

// SessionFilter keeps lines tagged with the given backup session id in
// either the console (session_id=...) or JSON ("session_id":"...") format.
func SessionFilter(id string) Filter {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	console := "session_id=" + id
	jsonForm := `"session_id":"` + id + `"`
	return func(line string) bool {
		return strings.Contains(line, console) || strings.Contains(line, jsonForm)
	}
}

// Last returns up to limit trailing lines that pass filter, and the file
// offset just past them. A missing file yields no lines and offset zero.
func Last(path string, limit int, filter Filter) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}
	if limit <= 0 {
		return nil, info.Size(), nil
	}

	ring := make([]string, limit)
	count, idx := 0, 0
	offset, err := scan(file, func(line string) {
		if filter != nil && !filter(line) {
			return
		}
		ring[idx] = line
		idx = (idx + 1) % limit
		count = min(count+1, limit)
	})
	if err != nil {
		return nil, 0, err
	}

	lines := make([]string, 0, count)
	start := 0
	if count == limit {
		start = idx
	}
	for i := range count {
		lines = append(lines, ring[(start+i)%limit])
	}
	return lines, offset, nil
}

// Follow emits lines appended after offset until ctx is done. It returns
// ctx.Err() on cancellation.
func Follow(ctx context.Context, path string, offset int64, poll time.Duration, filter Filter, emit func(string)) error {
	if poll <= 0 {
		poll = DefaultPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, filter, emit)
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, filter Filter, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	read, err := scan(file, func(line string) {
		if filter == nil || filter(line) {
			emit(line)
		}
	})
	if err != nil {
		return offset, err
	}
	return read, nil
}

// scan feeds complete lines to fn and returns the offset after the last
// complete line. A trailing partial line is left for the next read.
func scan(file *os.File, fn func(string)) (int64, error) {
	start, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("determine log offset: %w", err)
	}
	reader := bufio.NewReaderSize(file, scanBuffer)
	offset := start
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
		if err != nil {
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		if len(line) > maxLineSize {
			continue
		}
		fn(strings.TrimRight(line, "\r\n"))
	}
}
