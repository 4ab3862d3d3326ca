package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/dlawson/cload/internal/db"
	"github.com/dlawson/cload/internal/state"
)

// FileHistoryExtractor ingests versioned file snapshots from
// {source}/file-history/{sessionID}/{hash}@v{version}.
type FileHistoryExtractor struct {
	db        *db.Manager
	tracker   *state.Tracker
	sourceDir string
}

// NewFileHistory builds the file-history extractor.
func NewFileHistory(manager *db.Manager, tracker *state.Tracker, sourceDir string) *FileHistoryExtractor {
	return &FileHistoryExtractor{db: manager, tracker: tracker, sourceDir: sourceDir}
}

// Name implements Extractor.
func (e *FileHistoryExtractor) Name() string { return "file-history" }

// Extract implements Extractor.
func (e *FileHistoryExtractor) Extract(ctx context.Context, opts Options) (Stats, error) {
	var stats Stats

	historyDir := filepath.Join(e.sourceDir, "file-history")
	entries, err := os.ReadDir(historyDir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("dir", historyDir).Msg("file-history directory not found")
			return stats, nil
		}
		return stats, fmt.Errorf("reading %s: %w", historyDir, err)
	}

	log.Info().Int("sessions", len(entries)).Msg("scanning file-history")

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sessionID := entry.Name()
		sessionDir := filepath.Join(historyDir, sessionID)

		files, err := os.ReadDir(sessionDir)
		if err != nil {
			log.Error().Err(err).Str("session", sessionID).Msg("session dir read failed")
			stats.Errors++
			continue
		}
		sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

		for _, f := range files {
			if f.IsDir() {
				continue
			}
			path := filepath.Join(sessionDir, f.Name())

			process, err := e.tracker.ShouldProcess(ctx, e.Name(), path)
			if err != nil {
				log.Error().Err(err).Str("file", f.Name()).Msg("state check failed")
				stats.Errors++
				continue
			}
			if !process {
				continue
			}

			inserted, err := e.processVersion(ctx, sessionID, path, opts)
			if err != nil {
				log.Error().Err(err).Str("file", f.Name()).Msg("file version failed")
				stats.Errors++
				continue
			}
			stats.RecordsInserted += inserted
			stats.FilesProcessed++

			if !opts.DryRun {
				if err := e.tracker.MarkProcessed(ctx, e.Name(), path); err != nil {
					log.Error().Err(err).Str("file", f.Name()).Msg("fingerprint update failed")
					stats.Errors++
				}
			}
		}
	}

	return stats, nil
}

func (e *FileHistoryExtractor) processVersion(ctx context.Context, sessionID, path string, opts Options) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	content := sanitizeUTF8(string(data))

	hash, version := parseVersionFilename(filepath.Base(path))
	fileID := fmt.Sprintf("%s/%s@v%d", sessionID, hash, version)

	if opts.DryRun {
		return 1, nil
	}

	if err := e.db.Exec(ctx, `
		INSERT OR IGNORE INTO file_versions
		(id, session_id, file_hash, version, content, file_size)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fileID, sessionID, hash, version, content, len(data)); err != nil {
		return 0, err
	}
	return 1, nil
}

// parseVersionFilename splits {hash}@v{version}; an unparseable version
// yields version 0 with the whole name as the hash.
func parseVersionFilename(filename string) (hash string, version int) {
	if parts := strings.SplitN(filename, "@v", 2); len(parts) == 2 {
		if v, err := strconv.Atoi(parts[1]); err == nil {
			return parts[0], v
		}
	}
	return filename, 0
}

// sanitizeUTF8 replaces invalid byte sequences so snapshots of binary or
// mixed-encoding files still store.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, string(utf8.RuneError))
}
