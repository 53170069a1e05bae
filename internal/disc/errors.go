package disc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"slipstream/internal/iso9660"
)

var (
	ErrDeviceOpen         = errors.New("device open failed")
	ErrGeometryOverflow   = iso9660.ErrGeometryOverflow
	ErrKeyCrackFailed     = errors.New("title key crack failed")
	ErrNoKeysObtained     = errors.New("no title keys obtained")
	ErrSeekMismatch       = errors.New("seek landed on wrong sector")
	ErrReadLengthMismatch = errors.New("read returned unexpected sector count")
	ErrIOFailure          = errors.New("device i/o failure")
	ErrBackendUnavailable = errors.New("device backend unavailable")
	ErrUnsupported        = errors.New("operation not supported by backend")
	ErrInvalidRequest     = errors.New("invalid read request")
)

// DeviceOpenError reports why a target could not be opened.
type DeviceOpenError struct {
	Target string
	Reason string
	Err    error
}

func (e *DeviceOpenError) Error() string {
	msg := fmt.Sprintf("open %s", e.Target)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeviceOpenError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDeviceOpen}
	}
	return []error{ErrDeviceOpen, e.Err}
}

// KeyCrackError reports a VOB whose key-establishing seek failed or landed
// somewhere other than the file's first sector.
type KeyCrackError struct {
	File   string
	LBA    int
	Actual int
	Err    error
}

func (e *KeyCrackError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("crack title key for %s at sector %d: %v", e.File, e.LBA, e.Err)
	}
	return fmt.Sprintf("crack title key for %s: seek to sector %d landed on %d", e.File, e.LBA, e.Actual)
}

func (e *KeyCrackError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrKeyCrackFailed}
	}
	return []error{ErrKeyCrackFailed, e.Err}
}

// SeekError reports a seek that returned a different position than asked.
type SeekError struct {
	Requested int
	Actual    int
}

func (e *SeekError) Error() string {
	return fmt.Sprintf("seek to sector %d landed on %d", e.Requested, e.Actual)
}

func (e *SeekError) Unwrap() error { return ErrSeekMismatch }

// ReadLengthError reports a read whose sector count was not tolerated.
type ReadLengthError struct {
	First     int
	Requested int
	Actual    int
}

func (e *ReadLengthError) Error() string {
	return fmt.Sprintf("read at sector %d: requested %d sectors, got %d", e.First, e.Requested, e.Actual)
}

func (e *ReadLengthError) Unwrap() error { return ErrReadLengthMismatch }

// Wrap builds an error carrying operation context while tagging it with the
// provided marker. The marker should be one of the exported sentinels above.
func Wrap(marker error, operation, message string, err error) error {
	detail := buildDetail(operation, message)
	if marker == nil {
		marker = ErrIOFailure
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(operation, message string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "disc failure"
	}
	return strings.Join(parts, ": ")
}

// Failure categories reported to users and stored with history entries.
const (
	CategoryBadMedia    = "bad disc or drive"
	CategoryProtection  = "unsupported protection"
	CategoryFilesystem  = "corrupt filesystem"
	CategoryUnavailable = "device unavailable"
	CategoryCancelled   = "cancelled"
	CategoryUnknown     = "unknown"
)

// Classify maps an error to a user-facing failure category.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return CategoryCancelled
	case errors.Is(err, ErrDeviceOpen), errors.Is(err, ErrBackendUnavailable):
		return CategoryUnavailable
	case errors.Is(err, ErrKeyCrackFailed), errors.Is(err, ErrNoKeysObtained), errors.Is(err, ErrUnsupported):
		return CategoryProtection
	case errors.Is(err, iso9660.ErrInvalidDescriptor), errors.Is(err, ErrGeometryOverflow),
		errors.Is(err, iso9660.ErrNotDirectory):
		return CategoryFilesystem
	case errors.Is(err, ErrSeekMismatch), errors.Is(err, ErrReadLengthMismatch), errors.Is(err, ErrIOFailure):
		return CategoryBadMedia
	default:
		return CategoryUnknown
	}
}
