package extract

import (
	"context"
	"path/filepath"
	"testing"
)

func TestShellSnapshotsExtract(t *testing.T) {
	manager, tracker, sourceDir := newTestEnv(t)

	writeFile(t, filepath.Join(sourceDir, "shell-snapshots", "snapshot-zsh-1717236000000-abc123.sh"),
		"export PATH=/usr/local/bin:$PATH\nalias ll='ls -la'\n")
	// Files without the snapshot- prefix are not snapshots.
	writeFile(t, filepath.Join(sourceDir, "shell-snapshots", "README.sh"), "echo no\n")

	ext := NewShellSnapshots(manager, tracker, sourceDir)
	stats, err := ext.Extract(context.Background(), Options{})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if stats.FilesProcessed != 1 || stats.RecordsInserted != 1 {
		t.Errorf("stats = %+v, want one snapshot", stats)
	}

	id := "snapshot-zsh-1717236000000-abc123"
	if got := queryString(t, manager,
		"SELECT shell_type FROM shell_snapshots WHERE id = ?", id); got != "zsh" {
		t.Errorf("shell_type = %q, want zsh", got)
	}
	if got := queryString(t, manager,
		"SELECT timestamp FROM shell_snapshots WHERE id = ?", id); got != "2024-06-01T10:00:00Z" {
		t.Errorf("timestamp = %q", got)
	}
	hash := queryString(t, manager,
		"SELECT content_hash FROM shell_snapshots WHERE id = ?", id)
	if len(hash) != 64 {
		t.Errorf("content_hash length = %d, want 64 hex chars", len(hash))
	}
}

func TestParseSnapshotFilename(t *testing.T) {
	cases := []struct {
		in    string
		shell string
		ms    int64
	}{
		{"snapshot-bash-1717236000000-x9.sh", "bash", 1717236000000},
		{"snapshot-zsh-notanumber-x.sh", "unknown", 0},
		{"snapshot-weird.sh", "unknown", 0},
	}
	for _, c := range cases {
		shell, ms := parseSnapshotFilename(c.in)
		if shell != c.shell || ms != c.ms {
			t.Errorf("parseSnapshotFilename(%q) = (%q, %d), want (%q, %d)",
				c.in, shell, ms, c.shell, c.ms)
		}
	}
}
