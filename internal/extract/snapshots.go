package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dlawson/cload/internal/db"
	"github.com/dlawson/cload/internal/state"
)

// ShellSnapshotsExtractor ingests captured shell environments from
// {source}/shell-snapshots/snapshot-{shell}-{timestampMs}-{rand}.sh.
type ShellSnapshotsExtractor struct {
	db        *db.Manager
	tracker   *state.Tracker
	sourceDir string
}

// NewShellSnapshots builds the shell-snapshot extractor.
func NewShellSnapshots(manager *db.Manager, tracker *state.Tracker, sourceDir string) *ShellSnapshotsExtractor {
	return &ShellSnapshotsExtractor{db: manager, tracker: tracker, sourceDir: sourceDir}
}

// Name implements Extractor.
func (e *ShellSnapshotsExtractor) Name() string { return "shell-snapshots" }

// Extract implements Extractor.
func (e *ShellSnapshotsExtractor) Extract(ctx context.Context, opts Options) (Stats, error) {
	var stats Stats

	snapshotsDir := filepath.Join(e.sourceDir, "shell-snapshots")
	entries, err := os.ReadDir(snapshotsDir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("dir", snapshotsDir).Msg("shell-snapshots directory not found")
			return stats, nil
		}
		return stats, fmt.Errorf("reading %s: %w", snapshotsDir, err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, "snapshot-") && strings.HasSuffix(name, ".sh") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	log.Info().Int("files", len(names)).Msg("scanning shell snapshots")

	for _, name := range names {
		path := filepath.Join(snapshotsDir, name)

		process, err := e.tracker.ShouldProcess(ctx, e.Name(), path)
		if err != nil {
			log.Error().Err(err).Str("file", name).Msg("state check failed")
			stats.Errors++
			continue
		}
		if !process {
			continue
		}

		inserted, err := e.processSnapshot(ctx, path, opts)
		if err != nil {
			log.Error().Err(err).Str("file", name).Msg("snapshot failed")
			stats.Errors++
			continue
		}
		stats.RecordsInserted += inserted
		stats.FilesProcessed++

		if !opts.DryRun {
			if err := e.tracker.MarkProcessed(ctx, e.Name(), path); err != nil {
				log.Error().Err(err).Str("file", name).Msg("fingerprint update failed")
				stats.Errors++
			}
		}
	}

	return stats, nil
}

func (e *ShellSnapshotsExtractor) processSnapshot(ctx context.Context, path string, opts Options) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	content := sanitizeUTF8(string(data))

	filename := filepath.Base(path)
	shellType, timestampMs := parseSnapshotFilename(filename)

	timestamp := time.Now()
	if timestampMs > 0 {
		timestamp = time.UnixMilli(timestampMs)
	}

	snapshotID := strings.TrimSuffix(filename, ".sh")

	// Hash stored for deduplication awareness, not enforced.
	sum := sha256.Sum256([]byte(content))
	contentHash := hex.EncodeToString(sum[:])

	if opts.DryRun {
		return 1, nil
	}

	if err := e.db.Exec(ctx, `
		INSERT OR IGNORE INTO shell_snapshots
		(id, timestamp, shell_type, content, content_hash)
		VALUES (?, ?, ?, ?, ?)`,
		snapshotID, timestamp.UTC().Format(time.RFC3339), shellType, content, contentHash); err != nil {
		return 0, err
	}
	return 1, nil
}

// parseSnapshotFilename splits snapshot-{shell}-{timestampMs}-{rand}.sh.
// Unparseable names yield ("unknown", 0).
func parseSnapshotFilename(filename string) (shellType string, timestampMs int64) {
	name := strings.TrimSuffix(filename, ".sh")
	name = strings.TrimPrefix(name, "snapshot-")

	parts := strings.Split(name, "-")
	if len(parts) >= 2 {
		if ms, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
			return parts[0], ms
		}
	}
	return "unknown", 0
}
