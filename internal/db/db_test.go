package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *Manager {
	t.Helper()
	manager, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func TestOpenAppliesSchema(t *testing.T) {
	manager := openTestDB(t)
	ctx := context.Background()

	for _, table := range []string{
		"projects", "sessions", "agents", "messages", "tool_uses",
		"tool_results", "todos", "file_versions", "shell_snapshots",
		"history_log", "plans", "etl_file_state", "etl_runs",
	} {
		_, found, err := manager.QueryOneString(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table)
		if err != nil {
			t.Fatalf("sqlite_master lookup: %v", err)
		}
		if !found {
			t.Errorf("table %s missing from schema", table)
		}
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	first, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopening existing db: %v", err)
	}
	_ = second.Close()
}

func TestExecuteBatchInsertOrIgnore(t *testing.T) {
	manager := openTestDB(t)
	ctx := context.Background()

	rows := [][]any{
		{"/a", "a", "2025-06-01T10:00:00Z", "2025-06-01T10:00:00Z"},
		{"/b", "b", "2025-06-01T10:00:00Z", "2025-06-01T10:00:00Z"},
	}
	query := "INSERT OR IGNORE INTO projects (path, name, first_seen, last_seen) VALUES (?, ?, ?, ?)"

	n, err := manager.ExecuteBatch(ctx, query, rows)
	if err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if n != 2 {
		t.Errorf("first batch inserted = %d, want 2", n)
	}

	// Replay: conflicts are ignored and must not count as inserted.
	n, err = manager.ExecuteBatch(ctx, query, rows)
	if err != nil {
		t.Fatalf("replay batch: %v", err)
	}
	if n != 0 {
		t.Errorf("replay batch inserted = %d, want 0", n)
	}
}

func TestExecuteBatchChunks(t *testing.T) {
	manager := openTestDB(t)
	manager.SetBatchSize(2)
	ctx := context.Background()

	var rows [][]any
	for _, p := range []string{"/a", "/b", "/c", "/d", "/e"} {
		rows = append(rows, []any{p, p, "2025-06-01T10:00:00Z", "2025-06-01T10:00:00Z"})
	}

	n, err := manager.ExecuteBatch(ctx,
		"INSERT OR IGNORE INTO projects (path, name, first_seen, last_seen) VALUES (?, ?, ?, ?)", rows)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if n != 5 {
		t.Errorf("inserted = %d, want 5", n)
	}
}

func TestExecuteBatchEmpty(t *testing.T) {
	manager := openTestDB(t)

	n, err := manager.ExecuteBatch(context.Background(), "INSERT INTO projects (path) VALUES (?)", nil)
	if err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if n != 0 {
		t.Errorf("inserted = %d, want 0", n)
	}
}

func TestClosedManagerReturnsErrNotConnected(t *testing.T) {
	manager, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := manager.Close(); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := manager.Exec(ctx, "SELECT 1"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Exec after close: got %v, want ErrNotConnected", err)
	}
	if _, err := manager.ExecuteBatch(ctx, "SELECT 1", [][]any{{1}}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ExecuteBatch after close: got %v, want ErrNotConnected", err)
	}
	if _, _, err := manager.QueryOneString(ctx, "SELECT 1"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("QueryOneString after close: got %v, want ErrNotConnected", err)
	}
}

func TestQueryOneStringNoRow(t *testing.T) {
	manager := openTestDB(t)

	_, found, err := manager.QueryOneString(context.Background(),
		"SELECT id FROM agents WHERE session_id = ?", "nope")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if found {
		t.Error("found should be false for empty result")
	}
}

func TestRunStatusCheckConstraint(t *testing.T) {
	manager := openTestDB(t)

	err := manager.Exec(context.Background(), `
		INSERT INTO etl_runs
		(run_id, run_timestamp, source, files_processed, records_inserted,
		 errors_count, duration_seconds, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		"r1", "2025-06-01T10:00:00Z", "projects", 0, 0, 0, 0.1, "bogus")
	if err == nil {
		t.Error("invalid status should violate the CHECK constraint")
	}
}
