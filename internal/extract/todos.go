package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dlawson/cload/internal/db"
	"github.com/dlawson/cload/internal/state"
)

// TodosExtractor ingests task-list snapshots from {source}/todos/*.json.
//
// Filename grammar: {parentSession}-agent-{refSession}.json. The ref token
// may equal the parent token; neither is a hard foreign key because the
// referenced session may not exist yet.
type TodosExtractor struct {
	db        *db.Manager
	tracker   *state.Tracker
	sourceDir string
}

// NewTodos builds the todo extractor.
func NewTodos(manager *db.Manager, tracker *state.Tracker, sourceDir string) *TodosExtractor {
	return &TodosExtractor{db: manager, tracker: tracker, sourceDir: sourceDir}
}

// Name implements Extractor.
func (e *TodosExtractor) Name() string { return "todos" }

// Extract implements Extractor.
func (e *TodosExtractor) Extract(ctx context.Context, opts Options) (Stats, error) {
	var stats Stats

	todosDir := filepath.Join(e.sourceDir, "todos")
	entries, err := os.ReadDir(todosDir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("dir", todosDir).Msg("todos directory not found")
			return stats, nil
		}
		return stats, fmt.Errorf("reading %s: %w", todosDir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	log.Info().Int("files", len(names)).Msg("scanning todo files")

	for _, name := range names {
		path := filepath.Join(todosDir, name)

		process, err := e.tracker.ShouldProcess(ctx, e.Name(), path)
		if err != nil {
			log.Error().Err(err).Str("file", name).Msg("state check failed")
			stats.Errors++
			continue
		}
		if !process {
			continue
		}

		inserted, err := e.processFile(ctx, path, opts)
		if err != nil {
			log.Error().Err(err).Str("file", name).Msg("todo file failed")
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

// todoItem is one entry of a task-list snapshot.
type todoItem struct {
	Content    string `json:"content"`
	ActiveForm string `json:"activeForm"`
	Status     string `json:"status"`
}

func (e *TodosExtractor) processFile(ctx context.Context, path string, opts Options) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	var items []todoItem
	if err := json.Unmarshal(data, &items); err != nil {
		log.Warn().Str("file", filepath.Base(path)).Err(err).Msg("todo file is not a JSON list")
		return 0, nil
	}

	parentSession, refSession := parseTodoFilename(filepath.Base(path))

	// Best-effort agent resolution by the referenced session token. A miss
	// leaves the column null; the file is still processed.
	var agentID any
	if refSession != "" && !opts.DryRun {
		id, found, err := e.db.QueryOneString(ctx,
			"SELECT id FROM agents WHERE session_id = ?", refSession)
		if err != nil {
			return 0, err
		}
		if found {
			agentID = id
		} else {
			log.Info().Str("file", filepath.Base(path)).Str("session", refSession).
				Msg("no agent for referenced session, storing null")
		}
	}

	rows := make([][]any, 0, len(items))
	for idx, item := range items {
		status := item.Status
		if status == "" {
			status = "pending"
		}
		rows = append(rows, []any{
			fmt.Sprintf("%s-%s-%d", parentSession, refSession, idx),
			parentSession, refSession, agentID, idx,
			item.Content, item.ActiveForm, status,
		})
	}

	if len(rows) == 0 {
		return 0, nil
	}
	if opts.DryRun {
		return int64(len(rows)), nil
	}

	return e.db.ExecuteBatch(ctx, `
		INSERT OR IGNORE INTO todos
		(id, parent_session_id, ref_session_id, agent_id, sequence, content, active_form, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, rows)
}

// parseTodoFilename splits {parent}-agent-{ref}.json. A filename with only
// one distinguishable session token uses it for both; the two tokens do not
// imply a strict parent/child hierarchy.
func parseTodoFilename(filename string) (parentSession, refSession string) {
	name := strings.TrimSuffix(filename, ".json")

	if parts := strings.SplitN(name, "-agent-", 2); len(parts) == 2 {
		return parts[0], parts[1]
	}
	return name, name
}
