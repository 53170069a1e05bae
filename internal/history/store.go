package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store manages backup history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	// MaxRecentTargets bounds the recent_targets table.
	MaxRecentTargets = 10
)

// Open initializes or connects to the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Record inserts a finished backup attempt.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.SessionID) == "" {
		return errors.New("history entry requires a session id")
	}
	if entry.Status == "" {
		return errors.New("history entry requires a status")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO backups (
            session_id, target, volume_id, disc_id, output_path, sectors, scrambled, titles,
            status, error_category, error_message, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID,
		entry.Target,
		entry.VolumeID,
		nullableString(entry.DiscID),
		nullableString(entry.OutputPath),
		entry.Sectors,
		boolToInt(entry.Scrambled),
		entry.Titles,
		entry.Status,
		nullableString(entry.ErrorCategory),
		nullableString(entry.ErrorMessage),
		formatTime(entry.StartedAt),
		formatTime(entry.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert backup: %w", err)
	}
	return nil
}

const entryColumns = `id, session_id, target, volume_id, disc_id, output_path, sectors, scrambled, titles,
    status, error_category, error_message, started_at, finished_at`

// List returns the most recent entries first. A limit of zero or less
// returns every entry.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM backups ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query backups: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// FindByDiscID returns earlier attempts for the same disc, newest first.
func (s *Store) FindByDiscID(ctx context.Context, discID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+entryColumns+` FROM backups WHERE disc_id = ? ORDER BY started_at DESC, id DESC`, discID)
	if err != nil {
		return nil, fmt.Errorf("query backups by disc: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ClearFailed removes failed and cancelled entries and returns how many were removed.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM backups WHERE status IN (?, ?)`, StatusFailed, StatusCancelled)
	if err != nil {
		return 0, fmt.Errorf("clear failed backups: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every backup entry and recent target.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM backups`)
	if err != nil {
		return 0, fmt.Errorf("clear backups: %w", err)
	}
	if _, err := s.execWithRetry(ctx, `DELETE FROM recent_targets`); err != nil {
		return 0, fmt.Errorf("clear recent targets: %w", err)
	}
	return res.RowsAffected()
}

// TouchTarget marks target as just used, remembering outputDir when set, and
// trims the table to MaxRecentTargets.
func (s *Store) TouchTarget(ctx context.Context, target, outputDir string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return errors.New("target is empty")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO recent_targets (target, output_dir, last_used) VALUES (?, ?, ?)
         ON CONFLICT(target) DO UPDATE SET
             output_dir = COALESCE(excluded.output_dir, recent_targets.output_dir),
             last_used = excluded.last_used`,
		target,
		nullableString(outputDir),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("touch target: %w", err)
	}
	_, err = s.execWithRetry(ctx,
		`DELETE FROM recent_targets WHERE target NOT IN (
            SELECT target FROM recent_targets ORDER BY last_used DESC LIMIT ?
        )`, MaxRecentTargets)
	if err != nil {
		return fmt.Errorf("trim recent targets: %w", err)
	}
	return nil
}

// RecentTargets returns remembered targets, most recent first.
func (s *Store) RecentTargets(ctx context.Context) ([]RecentTarget, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT target, output_dir, last_used FROM recent_targets ORDER BY last_used DESC`)
	if err != nil {
		return nil, fmt.Errorf("query recent targets: %w", err)
	}
	defer rows.Close()

	var targets []RecentTarget
	for rows.Next() {
		var (
			rt        RecentTarget
			outputDir sql.NullString
			lastUsed  string
		)
		if err := rows.Scan(&rt.Target, &outputDir, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan recent target: %w", err)
		}
		rt.OutputDir = outputDir.String
		rt.LastUsed = parseTime(lastUsed)
		targets = append(targets, rt)
	}
	return targets, rows.Err()
}

// LastOutputDir returns the output directory of the most recent backup.
func (s *Store) LastOutputDir(ctx context.Context) (string, error) {
	var dir sql.NullString
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT output_dir FROM recent_targets WHERE output_dir IS NOT NULL ORDER BY last_used DESC LIMIT 1`,
	).Scan(&dir)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last output dir: %w", err)
	}
	return dir.String, nil
}
