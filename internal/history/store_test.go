package history_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"slipstream/internal/history"
	"slipstream/internal/testsupport"
)

func sampleEntry(session string, started time.Time, status history.Status) history.Entry {
	return history.Entry{
		SessionID:  session,
		Target:     "/dev/sr0",
		VolumeID:   "SAMPLE_DISC",
		DiscID:     "0011aabb|ccdd2233",
		OutputPath: "/tmp/out/SAMPLE_DISC.ISO",
		Sectors:    2048,
		Scrambled:  true,
		Titles:     3,
		Status:     status,
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
	}
}

func TestRecordAndList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.Record(ctx, sampleEntry("s1", base, history.StatusDone)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	failed := sampleEntry("s2", base.Add(time.Hour), history.StatusFailed)
	failed.ErrorCategory = "bad_media"
	failed.ErrorMessage = "I/O failure: read sector 400"
	failed.OutputPath = ""
	if err := store.Record(ctx, failed); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].SessionID != "s2" || entries[1].SessionID != "s1" {
		t.Fatalf("expected newest first, got %s, %s", entries[0].SessionID, entries[1].SessionID)
	}
	got := entries[0]
	if got.Status != history.StatusFailed || got.ErrorCategory != "bad_media" || got.OutputPath != "" {
		t.Fatalf("unexpected failed entry: %#v", got)
	}
	if !got.Scrambled || got.Sectors != 2048 || got.Titles != 3 {
		t.Fatalf("unexpected counters: %#v", got)
	}
	if !got.StartedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("started_at = %v", got.StartedAt)
	}
	if got.Duration() != 90*time.Second {
		t.Fatalf("duration = %v", got.Duration())
	}

	limited, err := store.List(ctx, 1)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(limited) != 1 || limited[0].SessionID != "s2" {
		t.Fatalf("unexpected limited list: %#v", limited)
	}
}

func TestListOrdersWithinSameSecond(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	if err := store.Record(ctx, sampleEntry("whole", base, history.StatusDone)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Record(ctx, sampleEntry("half", base.Add(500*time.Millisecond), history.StatusDone)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	entries, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if entries[0].SessionID != "half" {
		t.Fatalf("expected later entry first, got %s", entries[0].SessionID)
	}
}

func TestRecordValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	if err := store.Record(ctx, history.Entry{Status: history.StatusDone}); err == nil {
		t.Fatal("expected error without session id")
	}
	if err := store.Record(ctx, history.Entry{SessionID: "x"}); err == nil {
		t.Fatal("expected error without status")
	}
	entry := sampleEntry("dup", time.Now(), history.StatusDone)
	if err := store.Record(ctx, entry); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Record(ctx, entry); err == nil {
		t.Fatal("expected duplicate session id to fail")
	}
}

func TestFindByDiscID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range 3 {
		entry := sampleEntry(fmt.Sprintf("s%d", i), base.Add(time.Duration(i)*time.Minute), history.StatusDone)
		if i == 1 {
			entry.DiscID = "other"
		}
		if err := store.Record(ctx, entry); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	matches, err := store.FindByDiscID(ctx, "0011aabb|ccdd2233")
	if err != nil {
		t.Fatalf("FindByDiscID failed: %v", err)
	}
	if len(matches) != 2 || matches[0].SessionID != "s2" || matches[1].SessionID != "s0" {
		t.Fatalf("unexpected matches: %#v", matches)
	}
}

func TestClearFailedAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	now := time.Now()
	statuses := []history.Status{history.StatusDone, history.StatusFailed, history.StatusCancelled}
	for i, status := range statuses {
		if err := store.Record(ctx, sampleEntry(fmt.Sprintf("c%d", i), now.Add(time.Duration(i)*time.Second), status)); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if err := store.TouchTarget(ctx, "/dev/sr0", "/tmp/out"); err != nil {
		t.Fatalf("TouchTarget failed: %v", err)
	}

	removed, err := store.ClearFailed(ctx)
	if err != nil {
		t.Fatalf("ClearFailed failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	entries, _ := store.List(ctx, 0)
	if len(entries) != 1 || entries[0].Status != history.StatusDone {
		t.Fatalf("unexpected remaining entries: %#v", entries)
	}

	removed, err = store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	targets, err := store.RecentTargets(ctx)
	if err != nil {
		t.Fatalf("RecentTargets failed: %v", err)
	}
	if len(targets) != 0 {
		t.Fatalf("expected recent targets cleared, got %#v", targets)
	}
}

func TestTouchTargetKeepsOutputDirAndTrims(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	if err := store.TouchTarget(ctx, "/dev/sr0", "/srv/isos"); err != nil {
		t.Fatalf("TouchTarget failed: %v", err)
	}
	if err := store.TouchTarget(ctx, "/dev/sr0", ""); err != nil {
		t.Fatalf("TouchTarget failed: %v", err)
	}
	dir, err := store.LastOutputDir(ctx)
	if err != nil {
		t.Fatalf("LastOutputDir failed: %v", err)
	}
	if dir != "/srv/isos" {
		t.Fatalf("expected output dir kept, got %q", dir)
	}
	if err := store.TouchTarget(ctx, "  ", ""); err == nil {
		t.Fatal("expected empty target to fail")
	}

	for i := range history.MaxRecentTargets + 3 {
		if err := store.TouchTarget(ctx, fmt.Sprintf("/dev/sr%d", i+1), ""); err != nil {
			t.Fatalf("TouchTarget failed: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	targets, err := store.RecentTargets(ctx)
	if err != nil {
		t.Fatalf("RecentTargets failed: %v", err)
	}
	if len(targets) != history.MaxRecentTargets {
		t.Fatalf("expected %d targets, got %d", history.MaxRecentTargets, len(targets))
	}
	want := fmt.Sprintf("/dev/sr%d", history.MaxRecentTargets+3)
	if targets[0].Target != want {
		t.Fatalf("expected %s first, got %s", want, targets[0].Target)
	}
}

func TestLastOutputDirEmpty(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)

	dir, err := store.LastOutputDir(context.Background())
	if err != nil {
		t.Fatalf("LastOutputDir failed: %v", err)
	}
	if dir != "" {
		t.Fatalf("expected empty dir, got %q", dir)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("update version: %v", err)
	}
	_ = db.Close()

	_, err = history.Open(path)
	if !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	store, err := history.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Record(context.Background(), sampleEntry("keep", time.Now(), history.StatusDone)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	_ = store.Close()

	reopened, err := history.Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	entries, err := reopened.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 || reopened.Path() != path {
		t.Fatalf("unexpected reopen state: %d entries, path %s", len(entries), reopened.Path())
	}
}
