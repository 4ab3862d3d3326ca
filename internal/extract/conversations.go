package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dlawson/cload/internal/db"
	"github.com/dlawson/cload/internal/state"
)

// previewLimit bounds the stored tool-result content preview.
const previewLimit = 1000

// Marker record types that share the conversation stream but are not
// messages. They carry no uuid and must never be coerced into the messages
// schema.
var markerTypes = map[string]bool{
	"file-history-snapshot": true,
	"summary":               true,
	"queue-operation":       true,
}

// ProjectsExtractor ingests conversation transcripts from
// {source}/projects/{encodedPath}/*.jsonl, producing projects, sessions,
// agents, messages, tool_uses and tool_results rows.
type ProjectsExtractor struct {
	db        *db.Manager
	tracker   *state.Tracker
	sourceDir string
}

// NewProjects builds the conversation extractor.
func NewProjects(manager *db.Manager, tracker *state.Tracker, sourceDir string) *ProjectsExtractor {
	return &ProjectsExtractor{db: manager, tracker: tracker, sourceDir: sourceDir}
}

// Name implements Extractor.
func (e *ProjectsExtractor) Name() string { return "projects" }

// Extract implements Extractor.
func (e *ProjectsExtractor) Extract(ctx context.Context, opts Options) (Stats, error) {
	var stats Stats

	projectsDir := filepath.Join(e.sourceDir, "projects")
	entries, err := os.ReadDir(projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("dir", projectsDir).Msg("projects directory not found")
			return stats, nil
		}
		return stats, fmt.Errorf("reading %s: %w", projectsDir, err)
	}

	log.Info().Int("projects", len(entries)).Msg("scanning projects")

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		projectPath := decodeProjectPath(entry.Name())
		if !opts.DryRun {
			if err := e.upsertProject(ctx, projectPath, entry.Name()); err != nil {
				log.Error().Err(err).Str("project", entry.Name()).Msg("project upsert failed")
				stats.Errors++
				continue
			}
		}

		projectDir := filepath.Join(projectsDir, entry.Name())
		files, err := os.ReadDir(projectDir)
		if err != nil {
			log.Error().Err(err).Str("project", entry.Name()).Msg("project read failed")
			stats.Errors++
			continue
		}

		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".jsonl") {
				continue
			}
			path := filepath.Join(projectDir, f.Name())

			process, err := e.tracker.ShouldProcess(ctx, e.Name(), path)
			if err != nil {
				log.Error().Err(err).Str("file", f.Name()).Msg("state check failed")
				stats.Errors++
				continue
			}
			if !process {
				continue
			}

			fileStats, err := e.processFile(ctx, projectPath, path, opts)
			if err != nil {
				log.Error().Err(err).Str("file", f.Name()).Msg("conversation file failed")
				stats.Errors++
				continue
			}
			stats.Add(fileStats)
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

func (e *ProjectsExtractor) upsertProject(ctx context.Context, projectPath, dirName string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return e.db.Exec(ctx, `
		INSERT INTO projects (path, name, first_seen, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET last_seen = excluded.last_seen`,
		projectPath, displayName(dirName), now, now)
}

// convRecord is one line of a conversation stream. Role and content may
// live at the top level or nested under the message envelope; both forms
// occur in the wild.
type convRecord struct {
	UUID        string           `json:"uuid"`
	ParentUUID  string           `json:"parentUuid"`
	SessionID   string           `json:"sessionId"`
	Type        string           `json:"type"`
	Role        string           `json:"role"`
	Content     json.RawMessage  `json:"content"`
	Message     *messageEnvelope `json:"message"`
	AgentID     string           `json:"agentId"`
	IsSidechain bool             `json:"isSidechain"`
	Timestamp   string           `json:"timestamp"`
	Cwd         string           `json:"cwd"`
	GitBranch   string           `json:"gitBranch"`
	Version     string           `json:"version"`
	Model       string           `json:"model"`
	MessageID   string           `json:"message_id"`
	StopReason  string           `json:"stop_reason"`
	Usage       *tokenUsage      `json:"usage"`
}

type messageEnvelope struct {
	ID         string          `json:"id"`
	Role       string          `json:"role"`
	Model      string          `json:"model"`
	Content    json.RawMessage `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      *tokenUsage     `json:"usage"`
}

type tokenUsage struct {
	InputTokens         *int64 `json:"input_tokens"`
	OutputTokens        *int64 `json:"output_tokens"`
	CacheCreationTokens *int64 `json:"cache_creation_tokens"`
	CacheReadTokens     *int64 `json:"cache_read_tokens"`
}

// agentInfo records the first sighting of an agent within a file.
type agentInfo struct {
	isSidechain bool
	parentUUID  string
}

// fileBatch accumulates all rows parsed from one conversation file before
// any write happens, so a file commits as a unit or not at all.
type fileBatch struct {
	sessionID   string
	cwd         string
	gitBranch   string
	version     string
	startedAt   string
	endedAt     string
	agents      map[string]agentInfo
	agentOrder  []string
	messages    [][]any
	toolUses    [][]any
	toolResults [][]any
	skipped     int
	badLines    int
}

func (e *ProjectsExtractor) processFile(ctx context.Context, projectPath, path string, opts Options) (Stats, error) {
	var stats Stats

	batch, err := parseConversationFile(path)
	if err != nil {
		return stats, err
	}
	stats.RecordsSkipped = batch.skipped
	stats.Errors += batch.badLines

	if batch.sessionID == "" {
		if len(batch.messages) > 0 {
			log.Warn().Str("file", filepath.Base(path)).Msg("no session id, skipping file")
		} else {
			log.Debug().Str("file", filepath.Base(path)).Msg("empty conversation file")
		}
		return stats, nil
	}

	total := int64(len(batch.agents) + len(batch.messages) + len(batch.toolUses) + len(batch.toolResults))
	if opts.DryRun {
		stats.RecordsInserted = total
		return stats, nil
	}

	if err := e.db.Exec(ctx, `
		INSERT OR IGNORE INTO sessions
		(id, project_path, cwd, git_branch, version, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		batch.sessionID, projectPath, nullIfEmpty(batch.cwd),
		nullIfEmpty(batch.gitBranch), nullIfEmpty(batch.version),
		nullIfEmpty(batch.startedAt)); err != nil {
		return stats, fmt.Errorf("session upsert: %w", err)
	}

	if len(batch.agents) > 0 {
		rows := make([][]any, 0, len(batch.agents))
		now := time.Now().UTC().Format(time.RFC3339)
		for _, id := range batch.agentOrder {
			info := batch.agents[id]
			rows = append(rows, []any{id, batch.sessionID, boolToInt(info.isSidechain), nullIfEmpty(info.parentUUID), now})
		}
		n, err := e.db.ExecuteBatch(ctx, `
			INSERT OR IGNORE INTO agents
			(id, session_id, is_sidechain, parent_message_uuid, first_seen)
			VALUES (?, ?, ?, ?, ?)`, rows)
		if err != nil {
			return stats, fmt.Errorf("agents batch: %w", err)
		}
		stats.RecordsInserted += n
	}

	n, err := e.db.ExecuteBatch(ctx, `
		INSERT OR IGNORE INTO messages
		(uuid, parent_uuid, session_id, agent_id, timestamp, type,
		 role, content_text, content_json, model, message_id, stop_reason,
		 input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, batch.messages)
	if err != nil {
		return stats, fmt.Errorf("messages batch: %w", err)
	}
	stats.RecordsInserted += n

	n, err = e.db.ExecuteBatch(ctx, `
		INSERT OR IGNORE INTO tool_uses
		(message_uuid, tool_id, tool_name, input_json)
		VALUES (?, ?, ?, ?)`, batch.toolUses)
	if err != nil {
		return stats, fmt.Errorf("tool_uses batch: %w", err)
	}
	stats.RecordsInserted += n

	n, err = e.db.ExecuteBatch(ctx, `
		INSERT OR IGNORE INTO tool_results
		(message_uuid, tool_use_id, is_error, content_preview)
		VALUES (?, ?, ?, ?)`, batch.toolResults)
	if err != nil {
		return stats, fmt.Errorf("tool_results batch: %w", err)
	}
	stats.RecordsInserted += n

	if err := e.db.Exec(ctx, `
		UPDATE sessions SET
			ended_at = COALESCE(?, ended_at),
			message_count = (SELECT COUNT(*) FROM messages WHERE session_id = ?)
		WHERE id = ?`,
		nullIfEmpty(batch.endedAt), batch.sessionID, batch.sessionID); err != nil {
		return stats, fmt.Errorf("session refresh: %w", err)
	}

	return stats, nil
}

func parseConversationFile(path string) (*fileBatch, error) {
	batch := &fileBatch{agents: make(map[string]agentInfo)}

	badLines, err := streamJSONL(path, func(lineNo int, raw json.RawMessage) error {
		var rec convRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			log.Warn().Str("file", path).Int("line", lineNo).Err(err).Msg("malformed record")
			batch.badLines++
			return nil
		}

		if rec.UUID == "" {
			// Metadata markers colocated in the stream; not messages.
			if markerTypes[rec.Type] {
				log.Debug().Str("type", rec.Type).Int("line", lineNo).Msg("skipping non-message record")
			} else {
				log.Debug().Str("type", rec.Type).Int("line", lineNo).Msg("skipping record without uuid")
			}
			batch.skipped++
			return nil
		}

		if batch.sessionID == "" {
			batch.sessionID = resolveSessionID(rec.SessionID, path)
			batch.cwd = rec.Cwd
			batch.gitBranch = rec.GitBranch
			batch.version = rec.Version
			batch.startedAt = rec.Timestamp
		}

		timestamp := rec.Timestamp
		if timestamp == "" {
			timestamp = time.Now().UTC().Format(time.RFC3339)
		}
		if laterTimestamp(timestamp, batch.endedAt) {
			batch.endedAt = timestamp
		}

		if rec.AgentID != "" {
			if _, seen := batch.agents[rec.AgentID]; !seen {
				batch.agents[rec.AgentID] = agentInfo{isSidechain: rec.IsSidechain, parentUUID: rec.ParentUUID}
				batch.agentOrder = append(batch.agentOrder, rec.AgentID)
			}
		}

		role := rec.Role
		content := rec.Content
		model := rec.Model
		messageID := rec.MessageID
		stopReason := rec.StopReason
		usage := rec.Usage
		if rec.Message != nil {
			if role == "" {
				role = rec.Message.Role
				content = rec.Message.Content
			}
			if model == "" {
				model = rec.Message.Model
			}
			if messageID == "" {
				messageID = rec.Message.ID
			}
			if stopReason == "" {
				stopReason = rec.Message.StopReason
			}
			if usage == nil {
				usage = rec.Message.Usage
			}
		}

		contentText, contentJSON, blocks := normalizeContent(content)

		batch.messages = append(batch.messages, []any{
			rec.UUID, nullIfEmpty(rec.ParentUUID), batch.sessionID,
			nullIfEmpty(rec.AgentID), timestamp, nullIfEmpty(rec.Type),
			nullIfEmpty(role), nullIfEmpty(contentText), contentJSON,
			nullIfEmpty(model), nullIfEmpty(messageID), nullIfEmpty(stopReason),
			tokens(usage, func(u *tokenUsage) *int64 { return u.InputTokens }),
			tokens(usage, func(u *tokenUsage) *int64 { return u.OutputTokens }),
			tokens(usage, func(u *tokenUsage) *int64 { return u.CacheCreationTokens }),
			tokens(usage, func(u *tokenUsage) *int64 { return u.CacheReadTokens }),
		})

		for _, block := range blocks {
			switch block.Type {
			case "tool_use":
				input := "{}"
				if len(block.Input) > 0 {
					input = string(block.Input)
				}
				batch.toolUses = append(batch.toolUses, []any{rec.UUID, block.ID, block.Name, input})
			case "tool_result":
				batch.toolResults = append(batch.toolResults, []any{
					rec.UUID, block.ToolUseID, boolToInt(block.IsError), resultPreview(block.Content),
				})
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	batch.badLines += badLines

	return batch, nil
}

// resolveSessionID prefers the embedded sessionId and falls back to the
// filename stem when it is a bare session UUID. Agent stream files
// (agent-{id}.jsonl) without an embedded sessionId cannot be attributed.
func resolveSessionID(embedded, path string) string {
	if embedded != "" {
		return embedded
	}
	stem := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	if _, err := uuid.Parse(stem); err == nil {
		return stem
	}
	return ""
}

// contentBlock is one element of a multi-part content array.
type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	IsError   bool            `json:"is_error"`
	Content   json.RawMessage `json:"content"`
}

// normalizeContent flattens the two content shapes. A string payload maps
// straight to contentText; an array payload yields joined text-block text,
// the raw serialized array, and the typed blocks for tool routing.
func normalizeContent(raw json.RawMessage) (contentText string, contentJSON any, blocks []contentBlock) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		// Neither string nor array; keep the raw payload.
		return "", string(raw), nil
	}

	var parts []string
	for _, item := range items {
		var str string
		if err := json.Unmarshal(item, &str); err == nil {
			parts = append(parts, str)
			continue
		}
		var block contentBlock
		if err := json.Unmarshal(item, &block); err != nil {
			continue
		}
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
		blocks = append(blocks, block)
	}

	return strings.Join(parts, "\n"), string(raw), blocks
}

// resultPreview renders a tool result's content as a bounded preview.
// String content is truncated directly; block arrays are serialized first.
func resultPreview(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	return truncate(s, previewLimit)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// decodeProjectPath reverses the session store's path encoding, which
// replaces "/" with "-": "-Users-dlawson-repos-foo" -> "/Users/dlawson/repos/foo".
// Dashes inside path components are not recoverable.
func decodeProjectPath(encoded string) string {
	parts := strings.Split(encoded, "-")
	if len(parts) > 0 && parts[0] == "" {
		parts = parts[1:]
	}
	return "/" + strings.Join(parts, "/")
}

// displayName derives a human-readable project name from the encoded
// directory name by taking everything after the last known parent marker.
func displayName(dirName string) string {
	parts := strings.Split(dirName, "-")

	knownParents := map[string]bool{
		"projects": true, "repos": true, "src": true,
		"code": true, "workspace": true, "dev": true,
	}

	for i := len(parts) - 2; i >= 0; i-- {
		if knownParents[strings.ToLower(parts[i])] {
			if name := strings.Join(parts[i+1:], "-"); name != "" {
				return name
			}
		}
	}

	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return dirName
}

// laterTimestamp reports whether a is later than b; timestamps are RFC3339
// strings, parsed when possible and compared lexically otherwise.
func laterTimestamp(a, b string) bool {
	if b == "" {
		return a != ""
	}
	ta, errA := time.Parse(time.RFC3339Nano, a)
	tb, errB := time.Parse(time.RFC3339Nano, b)
	if errA == nil && errB == nil {
		return ta.After(tb)
	}
	return a > b
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func tokens(u *tokenUsage, pick func(*tokenUsage) *int64) any {
	if u == nil {
		return nil
	}
	v := pick(u)
	if v == nil {
		return nil
	}
	return *v
}
