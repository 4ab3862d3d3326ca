// Package etl orchestrates a full extraction run across all sources.
package etl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dlawson/cload/internal/db"
	"github.com/dlawson/cload/internal/extract"
	"github.com/dlawson/cload/internal/state"
)

// Config carries the run options consumed, not owned, by the core.
// Zero values mean: all sources, incremental, real writes.
type Config struct {
	Source    string   // session-store root directory
	DB        string   // database file path
	Force     bool     // treat every file as changed
	DryRun    bool     // parse but do not write
	Sources   []string // subset of source names; empty = all
	BatchSize int      // rows per insert transaction; 0 = default
}

// SourceResult is the per-source slice of a run summary.
type SourceResult struct {
	Name     string
	Stats    extract.Stats
	Duration time.Duration
	Status   string // success, partial, or failed
	Err      error  // set only when Status is failed
}

// Summary is the structured run result exposed to the CLI.
type Summary struct {
	RunID   string
	DryRun  bool
	Results []SourceResult
}

// Totals sums the per-source stats.
func (s *Summary) Totals() extract.Stats {
	var total extract.Stats
	for _, r := range s.Results {
		total.Add(r.Stats)
	}
	return total
}

// Failed reports whether any source failed outright.
func (s *Summary) Failed() bool {
	for _, r := range s.Results {
		if r.Status == "failed" {
			return true
		}
	}
	return false
}

// Run executes the ETL: sources run independently, sequentially, in their
// fixed order. Data-quality problems are contained per source; only
// infrastructure failures (missing source root, unusable database) return
// an error.
func Run(ctx context.Context, cfg Config) (*Summary, error) {
	if _, err := os.Stat(cfg.Source); err != nil {
		return nil, fmt.Errorf("source directory not found: %s", cfg.Source)
	}

	log.Info().Str("db", cfg.DB).Msg("opening database")
	manager, err := db.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	defer func() { _ = manager.Close() }()
	if cfg.BatchSize > 0 {
		manager.SetBatchSize(cfg.BatchSize)
	}

	tracker := state.New(manager, cfg.Force)
	summary := &Summary{RunID: tracker.RunID, DryRun: cfg.DryRun}

	extractors, err := selectSources(manager, tracker, cfg)
	if err != nil {
		return nil, err
	}

	opts := extract.Options{DryRun: cfg.DryRun}

	for _, ext := range extractors {
		log.Info().Str("source", ext.Name()).Msg("processing source")

		start := time.Now()
		stats, extractErr := ext.Extract(ctx, opts)
		duration := time.Since(start)

		result := SourceResult{
			Name:     ext.Name(),
			Stats:    stats,
			Duration: duration,
			Status:   statusFor(stats, extractErr),
			Err:      extractErr,
		}
		summary.Results = append(summary.Results, result)

		log.Info().
			Str("source", ext.Name()).
			Int("files", stats.FilesProcessed).
			Int64("records", stats.RecordsInserted).
			Int("skipped", stats.RecordsSkipped).
			Int("errors", stats.Errors).
			Str("status", result.Status).
			Dur("duration", duration).
			Msg("source done")

		// Run summaries are recorded even for partial/failed sources,
		// but never in dry-run.
		if !cfg.DryRun {
			if logErr := tracker.LogRun(ctx, ext.Name(), stats.FilesProcessed,
				int(stats.RecordsInserted), stats.Errors, duration, result.Status); logErr != nil {
				log.Error().Err(logErr).Str("source", ext.Name()).Msg("run log failed")
			}
		}

		if errors.Is(extractErr, db.ErrNotConnected) {
			return summary, extractErr
		}
	}

	return summary, nil
}

func selectSources(manager *db.Manager, tracker *state.Tracker, cfg Config) ([]extract.Extractor, error) {
	all := extract.Sources(manager, tracker, cfg.Source)
	if len(cfg.Sources) == 0 {
		return all, nil
	}

	requested := make(map[string]bool, len(cfg.Sources))
	for _, name := range cfg.Sources {
		requested[name] = true
	}

	var selected []extract.Extractor
	for _, ext := range all {
		if requested[ext.Name()] {
			selected = append(selected, ext)
			delete(requested, ext.Name())
		}
	}
	for name := range requested {
		log.Warn().Str("source", name).Msg("unknown source requested")
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no valid sources in %v", cfg.Sources)
	}
	return selected, nil
}

func statusFor(stats extract.Stats, err error) string {
	switch {
	case err != nil:
		return "failed"
	case stats.Errors > 0:
		return "partial"
	default:
		return "success"
	}
}
