package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dlawson/cload/internal/db"
	"github.com/dlawson/cload/internal/state"
)

// newTestEnv creates a temp database and source root for extractor tests.
func newTestEnv(t *testing.T) (*db.Manager, *state.Tracker, string) {
	t.Helper()

	dir := t.TempDir()
	manager, err := db.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })

	sourceDir := filepath.Join(dir, "claude")
	if err := os.MkdirAll(sourceDir, 0o755); err != nil {
		t.Fatal(err)
	}

	return manager, state.New(manager, false), sourceDir
}

// writeFile writes content to path, creating parent directories.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// countRows returns the row count of a table.
func countRows(t *testing.T, manager *db.Manager, table string) int64 {
	t.Helper()
	n, _, err := manager.QueryOneInt(context.Background(), "SELECT COUNT(*) FROM "+table)
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

// queryString returns a single string column value, failing if absent.
func queryString(t *testing.T, manager *db.Manager, query string, args ...any) string {
	t.Helper()
	v, found, err := manager.QueryOneString(context.Background(), query, args...)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !found {
		t.Fatalf("no row for %s", query)
	}
	return v
}
