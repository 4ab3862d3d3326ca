package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dlawson/cload/internal/db"
	"github.com/dlawson/cload/internal/state"
)

// PlansExtractor ingests planning-mode markdown documents from
// {source}/plans/*.md. Plans are living documents, so rows are replaced
// rather than ignored on conflict.
type PlansExtractor struct {
	db        *db.Manager
	tracker   *state.Tracker
	sourceDir string
}

// NewPlans builds the plans extractor.
func NewPlans(manager *db.Manager, tracker *state.Tracker, sourceDir string) *PlansExtractor {
	return &PlansExtractor{db: manager, tracker: tracker, sourceDir: sourceDir}
}

// Name implements Extractor.
func (e *PlansExtractor) Name() string { return "plans" }

// Extract implements Extractor.
func (e *PlansExtractor) Extract(ctx context.Context, opts Options) (Stats, error) {
	var stats Stats

	plansDir := filepath.Join(e.sourceDir, "plans")
	entries, err := os.ReadDir(plansDir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("dir", plansDir).Msg("plans directory not found")
			return stats, nil
		}
		return stats, fmt.Errorf("reading %s: %w", plansDir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".md") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	log.Info().Int("files", len(names)).Msg("scanning plan files")

	for _, name := range names {
		path := filepath.Join(plansDir, name)

		process, err := e.tracker.ShouldProcess(ctx, e.Name(), path)
		if err != nil {
			log.Error().Err(err).Str("file", name).Msg("state check failed")
			stats.Errors++
			continue
		}
		if !process {
			continue
		}

		inserted, err := e.processPlan(ctx, path, opts)
		if err != nil {
			log.Error().Err(err).Str("file", name).Msg("plan failed")
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

func (e *PlansExtractor) processPlan(ctx context.Context, path string, opts Options) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	content := sanitizeUTF8(string(data))

	filename := filepath.Base(path)
	refSession := planAgentRef(filename)
	title := planTitle(content)
	if title == "" {
		title = strings.TrimSuffix(filename, ".md")
	}

	// Same session-scoped lookup as todos: the filename suffix names a
	// session, not an agent; a miss leaves the column null.
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
			log.Info().Str("file", filename).Str("session", refSession).
				Msg("no agent for referenced session, storing null")
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	modifiedAt := info.ModTime().UTC().Format(time.RFC3339)

	if opts.DryRun {
		return 1, nil
	}

	if err := e.db.Exec(ctx, `
		INSERT INTO plans
		(filename, agent_id, title, content, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
			agent_id = excluded.agent_id,
			title = excluded.title,
			content = excluded.content,
			modified_at = excluded.modified_at`,
		filename, agentID, title, content, modifiedAt, modifiedAt); err != nil {
		return 0, err
	}
	return 1, nil
}

// planAgentRef extracts the session token from a {name}-agent-{uuid}.md
// filename, or "" when the suffix is absent.
func planAgentRef(filename string) string {
	name := strings.TrimSuffix(filename, ".md")
	if parts := strings.SplitN(name, "-agent-", 2); len(parts) == 2 {
		return parts[1]
	}
	return ""
}

// planTitle returns the text of the first "# " heading, or "".
func planTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}
