package extract

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dlawson/cload/internal/db"
	"github.com/dlawson/cload/internal/state"
)

// HistoryLogExtractor ingests the flat global session index at
// {source}/history.jsonl, one independent record per line.
type HistoryLogExtractor struct {
	db        *db.Manager
	tracker   *state.Tracker
	sourceDir string
}

// NewHistoryLog builds the history-log extractor.
func NewHistoryLog(manager *db.Manager, tracker *state.Tracker, sourceDir string) *HistoryLogExtractor {
	return &HistoryLogExtractor{db: manager, tracker: tracker, sourceDir: sourceDir}
}

// Name implements Extractor.
func (e *HistoryLogExtractor) Name() string { return "history" }

type historyEntry struct {
	Timestamp   string `json:"timestamp"`
	ProjectPath string `json:"project_path"`
	Display     string `json:"display"`
}

// Extract implements Extractor.
func (e *HistoryLogExtractor) Extract(ctx context.Context, opts Options) (Stats, error) {
	var stats Stats

	historyFile := filepath.Join(e.sourceDir, "history.jsonl")
	if _, err := os.Stat(historyFile); os.IsNotExist(err) {
		log.Info().Str("file", historyFile).Msg("history file not found")
		return stats, nil
	}

	process, err := e.tracker.ShouldProcess(ctx, e.Name(), historyFile)
	if err != nil {
		return stats, err
	}
	if !process {
		log.Debug().Msg("history file unchanged since last run")
		return stats, nil
	}

	var rows [][]any
	badLines, err := streamJSONL(historyFile, func(lineNo int, raw json.RawMessage) error {
		var entry historyEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			log.Warn().Int("line", lineNo).Err(err).Msg("malformed history entry")
			stats.Errors++
			return nil
		}
		if entry.Timestamp == "" {
			entry.Timestamp = time.Now().UTC().Format(time.RFC3339)
		}
		rows = append(rows, []any{entry.Timestamp, nullIfEmpty(entry.ProjectPath), entry.Display})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("history file failed")
		stats.Errors++
		return stats, nil
	}
	stats.Errors += badLines

	if opts.DryRun {
		stats.RecordsInserted = int64(len(rows))
		stats.FilesProcessed = 1
		return stats, nil
	}

	inserted, err := e.db.ExecuteBatch(ctx, `
		INSERT OR IGNORE INTO history_log
		(timestamp, project_path, display)
		VALUES (?, ?, ?)`, rows)
	if err != nil {
		return stats, err
	}
	stats.RecordsInserted = inserted
	stats.FilesProcessed = 1

	if err := e.tracker.MarkProcessed(ctx, e.Name(), historyFile); err != nil {
		log.Error().Err(err).Msg("fingerprint update failed")
		stats.Errors++
	}

	return stats, nil
}
