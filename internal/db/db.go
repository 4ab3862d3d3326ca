// Package db provides the SQLite-backed relational store for extracted
// session data.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // register sqlite driver
)

// ErrNotConnected is returned when an operation runs against a Manager whose
// connection was never opened or has been closed. This is a programmer
// error, not a recoverable condition.
var ErrNotConnected = errors.New("db: not connected")

// DefaultBatchSize is the number of rows committed per batch transaction.
// A tuning knob, not a correctness concern; batches commit atomically.
const DefaultBatchSize = 1000

// Manager owns the single database connection for an ETL run.
type Manager struct {
	db        *sql.DB
	path      string
	batchSize int
}

// Open opens or creates the database at the given path, enables WAL and
// foreign-key enforcement, and applies the schema idempotently.
func Open(dbPath string) (*Manager, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating db dir: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Manager{db: conn, path: dbPath, batchSize: DefaultBatchSize}, nil
}

// Close closes the connection. Further operations return ErrNotConnected.
func (m *Manager) Close() error {
	if m.db == nil {
		return ErrNotConnected
	}
	err := m.db.Close()
	m.db = nil
	return err
}

// Path returns the database file path.
func (m *Manager) Path() string {
	return m.path
}

// SetBatchSize overrides the default batch size. Values below 1 are ignored.
func (m *Manager) SetBatchSize(n int) {
	if n >= 1 {
		m.batchSize = n
	}
}

func (m *Manager) conn() (*sql.DB, error) {
	if m == nil || m.db == nil {
		return nil, ErrNotConnected
	}
	return m.db, nil
}

// ExecuteBatch runs the same insert statement for every row, chunked into
// transactions of the configured batch size. Each chunk either fully commits
// or rolls back. The returned count sums RowsAffected, so rows absorbed by
// an INSERT OR IGNORE conflict policy do not count as inserted.
func (m *Manager) ExecuteBatch(ctx context.Context, query string, rows [][]any) (int64, error) {
	conn, err := m.conn()
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	var total int64
	for start := 0; start < len(rows); start += m.batchSize {
		end := start + m.batchSize
		if end > len(rows) {
			end = len(rows)
		}

		n, err := execChunk(ctx, conn, query, rows[start:end])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func execChunk(ctx context.Context, conn *sql.DB, query string, rows [][]any) (int64, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin batch tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	var n int64
	for _, row := range rows {
		res, err := stmt.ExecContext(ctx, row...)
		if err != nil {
			return 0, fmt.Errorf("batch exec: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		n += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return n, nil
}

// Exec runs a single statement in its own transaction.
func (m *Manager) Exec(ctx context.Context, query string, args ...any) error {
	conn, err := m.conn()
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, query, args...)
	return err
}

// QueryOneString runs a query expected to return at most one row with a
// single text column. found is false when no row matched; that is not an
// error. Extractors use this for soft foreign-key resolution.
func (m *Manager) QueryOneString(ctx context.Context, query string, args ...any) (value string, found bool, err error) {
	conn, err := m.conn()
	if err != nil {
		return "", false, err
	}

	err = conn.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// QueryOneInt is QueryOneString for a single integer column.
func (m *Manager) QueryOneInt(ctx context.Context, query string, args ...any) (value int64, found bool, err error) {
	conn, err := m.conn()
	if err != nil {
		return 0, false, err
	}

	err = conn.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

// Query exposes multi-row reads for the CLI status surfaces.
func (m *Manager) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	conn, err := m.conn()
	if err != nil {
		return nil, err
	}
	return conn.QueryContext(ctx, query, args...)
}

// Tx runs fn inside a single transaction, committing on nil return.
func (m *Manager) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	conn, err := m.conn()
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
