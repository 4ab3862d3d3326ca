package db

const schemaSQL = `
CREATE TABLE IF NOT EXISTS projects (
    path        TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    git_origin  TEXT,
    first_seen  TEXT NOT NULL,
    last_seen   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
    id            TEXT PRIMARY KEY,
    project_path  TEXT,
    cwd           TEXT,
    git_branch    TEXT,
    version       TEXT,
    started_at    TEXT,
    ended_at      TEXT,
    message_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS agents (
    id                  TEXT PRIMARY KEY,
    session_id          TEXT NOT NULL,
    is_sidechain        INTEGER NOT NULL DEFAULT 0,
    parent_message_uuid TEXT,
    first_seen          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    uuid                  TEXT PRIMARY KEY,
    parent_uuid           TEXT,
    session_id            TEXT NOT NULL,
    agent_id              TEXT,
    timestamp             TEXT,
    type                  TEXT,
    role                  TEXT,
    content_text          TEXT,
    content_json          TEXT,
    model                 TEXT,
    message_id            TEXT,
    stop_reason           TEXT,
    input_tokens          INTEGER,
    output_tokens         INTEGER,
    cache_creation_tokens INTEGER,
    cache_read_tokens     INTEGER
);

CREATE TABLE IF NOT EXISTS tool_uses (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    message_uuid TEXT NOT NULL,
    tool_id      TEXT NOT NULL,
    tool_name    TEXT,
    input_json   TEXT,
    UNIQUE (message_uuid, tool_id)
);

CREATE TABLE IF NOT EXISTS tool_results (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    message_uuid    TEXT NOT NULL,
    tool_use_id     TEXT NOT NULL,
    is_error        INTEGER NOT NULL DEFAULT 0,
    content_preview TEXT,
    UNIQUE (message_uuid, tool_use_id)
);

CREATE TABLE IF NOT EXISTS todos (
    id                TEXT PRIMARY KEY,
    parent_session_id TEXT NOT NULL,
    ref_session_id    TEXT NOT NULL,
    agent_id          TEXT,
    sequence          INTEGER NOT NULL,
    content           TEXT,
    active_form       TEXT,
    status            TEXT NOT NULL DEFAULT 'pending'
);

CREATE TABLE IF NOT EXISTS file_versions (
    id         TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    file_hash  TEXT NOT NULL,
    version    INTEGER NOT NULL,
    content    TEXT,
    file_size  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS shell_snapshots (
    id           TEXT PRIMARY KEY,
    timestamp    TEXT,
    shell_type   TEXT,
    content      TEXT,
    content_hash TEXT
);

CREATE TABLE IF NOT EXISTS history_log (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp    TEXT NOT NULL,
    project_path TEXT,
    display      TEXT,
    UNIQUE (timestamp, display)
);

CREATE TABLE IF NOT EXISTS plans (
    filename    TEXT PRIMARY KEY,
    agent_id    TEXT,
    title       TEXT,
    content     TEXT,
    created_at  TEXT,
    modified_at TEXT
);

CREATE TABLE IF NOT EXISTS etl_file_state (
    file_path      TEXT PRIMARY KEY,
    source         TEXT NOT NULL,
    mtime_ns       INTEGER NOT NULL,
    size_bytes     INTEGER NOT NULL,
    last_processed TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS etl_runs (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id           TEXT NOT NULL,
    run_timestamp    TEXT NOT NULL,
    source           TEXT NOT NULL,
    files_processed  INTEGER NOT NULL,
    records_inserted INTEGER NOT NULL,
    errors_count     INTEGER NOT NULL,
    duration_seconds REAL NOT NULL,
    status           TEXT NOT NULL CHECK (status IN ('success', 'partial', 'failed'))
);

CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_path);
CREATE INDEX IF NOT EXISTS idx_agents_session ON agents(session_id);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
CREATE INDEX IF NOT EXISTS idx_messages_parent ON messages(parent_uuid);
CREATE INDEX IF NOT EXISTS idx_tool_uses_message ON tool_uses(message_uuid);
CREATE INDEX IF NOT EXISTS idx_tool_results_message ON tool_results(message_uuid);
CREATE INDEX IF NOT EXISTS idx_todos_parent ON todos(parent_session_id);
CREATE INDEX IF NOT EXISTS idx_file_versions_session ON file_versions(session_id);
CREATE INDEX IF NOT EXISTS idx_etl_runs_source ON etl_runs(source, run_timestamp);
`
