// Package config loads cload's optional TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all cload configuration. Flags override config values,
// which override built-in defaults.
type Config struct {
	General GeneralConfig `toml:"general"`
}

// GeneralConfig holds general preferences.
type GeneralConfig struct {
	SourceDir string   `toml:"source_dir,omitempty"`
	DBPath    string   `toml:"db_path,omitempty"`
	BatchSize int      `toml:"batch_size,omitempty"`
	Sources   []string `toml:"sources,omitempty"`
}

// DefaultSourceDir returns the default session-store root (~/.claude).
func DefaultSourceDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude")
}

// DefaultDBPath returns the default database location.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "claude", "conversations.db")
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			SourceDir: DefaultSourceDir(),
			DBPath:    DefaultDBPath(),
			BatchSize: 1000,
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cload")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "cload")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	return loadFrom(ConfigPath())
}

func loadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.General.SourceDir == "" {
		cfg.General.SourceDir = DefaultSourceDir()
	}
	if cfg.General.DBPath == "" {
		cfg.General.DBPath = DefaultDBPath()
	}
	if cfg.General.BatchSize <= 0 {
		cfg.General.BatchSize = 1000
	}

	return cfg, nil
}
