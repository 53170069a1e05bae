package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry         Entry
		discID        sql.NullString
		outputPath    sql.NullString
		scrambled     int
		errorCategory sql.NullString
		errorMessage  sql.NullString
		startedAt     string
		finishedAt    string
	)
	if err := row.Scan(
		&entry.ID,
		&entry.SessionID,
		&entry.Target,
		&entry.VolumeID,
		&discID,
		&outputPath,
		&entry.Sectors,
		&scrambled,
		&entry.Titles,
		&entry.Status,
		&errorCategory,
		&errorMessage,
		&startedAt,
		&finishedAt,
	); err != nil {
		return Entry{}, fmt.Errorf("scan backup: %w", err)
	}
	entry.DiscID = discID.String
	entry.OutputPath = outputPath.String
	entry.Scrambled = scrambled != 0
	entry.ErrorCategory = errorCategory.String
	entry.ErrorMessage = errorMessage.String
	entry.StartedAt = parseTime(startedAt)
	entry.FinishedAt = parseTime(finishedAt)
	return entry, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// timeLayout keeps fractional seconds fixed-width so stored values sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
