// Package extract parses the six Claude Code session-store file families
// into relational rows.
//
// Extractors never talk to each other; cross-source references (a todo's
// agent, a plan's agent) are resolved by best-effort lookup against rows
// already committed by earlier sources.
package extract

import (
	"context"

	"github.com/dlawson/cload/internal/db"
	"github.com/dlawson/cload/internal/state"
)

// Options controls an extraction pass.
type Options struct {
	// DryRun executes the full parse path but withholds database writes
	// and file-state updates, so reported counts match a real run.
	DryRun bool
}

// Stats accumulates the outcome of one extraction pass. Values are merged
// upward by the orchestrator; extractors never share counters.
type Stats struct {
	FilesProcessed  int
	RecordsInserted int64
	RecordsSkipped  int // structurally valid but out-of-schema records
	Errors          int
}

// Add merges other into s.
func (s *Stats) Add(other Stats) {
	s.FilesProcessed += other.FilesProcessed
	s.RecordsInserted += other.RecordsInserted
	s.RecordsSkipped += other.RecordsSkipped
	s.Errors += other.Errors
}

// Extractor parses one file-format family into rows for one or more tables.
//
// A non-nil error means the source could not run at all. Malformed records
// and unreadable files only increment Stats.Errors; they never escalate
// past the owning extractor.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, opts Options) (Stats, error)
}

// Sources returns all extractors in their fixed run order. Conversations
// run first so that later sources can resolve agents by lookup.
func Sources(manager *db.Manager, tracker *state.Tracker, sourceDir string) []Extractor {
	return []Extractor{
		NewProjects(manager, tracker, sourceDir),
		NewTodos(manager, tracker, sourceDir),
		NewFileHistory(manager, tracker, sourceDir),
		NewHistoryLog(manager, tracker, sourceDir),
		NewPlans(manager, tracker, sourceDir),
		NewShellSnapshots(manager, tracker, sourceDir),
	}
}

// SourceNames returns the registry names in run order.
func SourceNames() []string {
	return []string{"projects", "todos", "file-history", "history", "plans", "shell-snapshots"}
}
