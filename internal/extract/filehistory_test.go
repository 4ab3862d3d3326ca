package extract

import (
	"context"
	"path/filepath"
	"testing"
)

func TestFileHistoryVersions(t *testing.T) {
	manager, tracker, sourceDir := newTestEnv(t)

	sessionDir := filepath.Join(sourceDir, "file-history", "sess-1")
	writeFile(t, filepath.Join(sessionDir, "abc123@v1"), "package main\n")
	writeFile(t, filepath.Join(sessionDir, "abc123@v2"), "package main\n\nfunc main() {}\n")

	ext := NewFileHistory(manager, tracker, sourceDir)
	stats, err := ext.Extract(context.Background(), Options{})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if stats.FilesProcessed != 2 {
		t.Errorf("FilesProcessed = %d, want 2", stats.FilesProcessed)
	}
	if stats.RecordsInserted != 2 {
		t.Errorf("RecordsInserted = %d, want 2", stats.RecordsInserted)
	}

	got := queryString(t, manager,
		"SELECT content FROM file_versions WHERE id = ?", "sess-1/abc123@v2")
	if got != "package main\n\nfunc main() {}\n" {
		t.Errorf("content = %q", got)
	}
	v := queryString(t, manager,
		"SELECT CAST(version AS TEXT) FROM file_versions WHERE id = ?", "sess-1/abc123@v1")
	if v != "1" {
		t.Errorf("version = %s, want 1", v)
	}
	size := queryString(t, manager,
		"SELECT CAST(file_size AS TEXT) FROM file_versions WHERE id = ?", "sess-1/abc123@v1")
	if size != "13" {
		t.Errorf("file_size = %s, want 13", size)
	}
}

func TestFileHistoryReplayInsertsNothing(t *testing.T) {
	manager, tracker, sourceDir := newTestEnv(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(sourceDir, "file-history", "sess-1", "abc@v1"), "x")

	ext := NewFileHistory(manager, tracker, sourceDir)
	if _, err := ext.Extract(ctx, Options{}); err != nil {
		t.Fatal(err)
	}

	// Unchanged file: fingerprint matches, nothing is reprocessed.
	stats, err := ext.Extract(ctx, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesProcessed != 0 || stats.RecordsInserted != 0 {
		t.Errorf("replay stats = %+v, want zero work", stats)
	}
}

func TestParseVersionFilename(t *testing.T) {
	cases := []struct {
		in      string
		hash    string
		version int
	}{
		{"abc123@v7", "abc123", 7},
		{"abc123@vX", "abc123@vX", 0},
		{"noversion", "noversion", 0},
	}
	for _, c := range cases {
		hash, version := parseVersionFilename(c.in)
		if hash != c.hash || version != c.version {
			t.Errorf("parseVersionFilename(%q) = (%q, %d), want (%q, %d)",
				c.in, hash, version, c.hash, c.version)
		}
	}
}

func TestSanitizeUTF8(t *testing.T) {
	if got := sanitizeUTF8("clean"); got != "clean" {
		t.Errorf("clean string altered: %q", got)
	}
	dirty := string([]byte{0x68, 0x69, 0xff, 0xfe})
	got := sanitizeUTF8(dirty)
	if got == dirty {
		t.Error("invalid bytes should be replaced")
	}
}
