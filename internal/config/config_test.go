package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := loadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing config should not error: %v", err)
	}

	if cfg.General.SourceDir != DefaultSourceDir() {
		t.Errorf("SourceDir = %q, want default", cfg.General.SourceDir)
	}
	if cfg.General.DBPath != DefaultDBPath() {
		t.Errorf("DBPath = %q, want default", cfg.General.DBPath)
	}
	if cfg.General.BatchSize != 1000 {
		t.Errorf("BatchSize = %d, want 1000", cfg.General.BatchSize)
	}
}

func TestLoadFromOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `[general]
source_dir = "/data/claude"
db_path = "/data/claude.db"
batch_size = 250
sources = ["projects", "todos"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadFrom(path)
	if err != nil {
		t.Fatalf("loadFrom: %v", err)
	}

	if cfg.General.SourceDir != "/data/claude" {
		t.Errorf("SourceDir = %q", cfg.General.SourceDir)
	}
	if cfg.General.DBPath != "/data/claude.db" {
		t.Errorf("DBPath = %q", cfg.General.DBPath)
	}
	if cfg.General.BatchSize != 250 {
		t.Errorf("BatchSize = %d", cfg.General.BatchSize)
	}
	if len(cfg.General.Sources) != 2 || cfg.General.Sources[0] != "projects" {
		t.Errorf("Sources = %v", cfg.General.Sources)
	}
}

func TestLoadFromPartialConfigBackfills(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[general]\nbatch_size = 50\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadFrom(path)
	if err != nil {
		t.Fatalf("loadFrom: %v", err)
	}

	if cfg.General.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", cfg.General.BatchSize)
	}
	if cfg.General.SourceDir == "" || cfg.General.DBPath == "" {
		t.Error("unset paths should fall back to defaults")
	}
}

func TestLoadFromInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("not [valid toml"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := loadFrom(path); err == nil {
		t.Error("invalid TOML should error")
	}
}
