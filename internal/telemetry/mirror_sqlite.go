package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/yinkev/studyin/internal/logging"
)

// SQLiteMirror projects accepted events into local attempts/sessions tables.
// It is a Sink, usable standalone or alongside the NDJSON log.
type SQLiteMirror struct {
	db *sql.DB
}

// NewSQLiteMirror opens (and initializes) the mirror database at path.
func NewSQLiteMirror(path string) (*SQLiteMirror, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.IngestDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.IngestDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		lo_ids TEXT NOT NULL,
		ts_submit INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		mode TEXT NOT NULL,
		choice TEXT NOT NULL,
		correct INTEGER NOT NULL,
		doc TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_user ON attempts(user_id, ts_submit);
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		start_ts INTEGER NOT NULL,
		end_ts INTEGER,
		completed INTEGER NOT NULL,
		doc TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.Ingest("SQLite mirror ready at %s", path)
	return &SQLiteMirror{db: db}, nil
}

// Close releases the database handle.
func (m *SQLiteMirror) Close() error { return m.db.Close() }

// Attempt implements Sink.
func (m *SQLiteMirror) Attempt(ctx context.Context, evt AttemptEvent) error {
	loIDs, err := json.Marshal(evt.LoIDs)
	if err != nil {
		return fmt.Errorf("failed to encode lo_ids: %w", err)
	}
	doc, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode attempt: %w", err)
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO attempts (session_id, user_id, item_id, lo_ids, ts_submit, duration_ms, mode, choice, correct, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.SessionID, evt.UserID, evt.ItemID, string(loIDs), evt.TsSubmit,
		evt.DurationMs, evt.Mode, evt.Choice, evt.Correct, string(doc))
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

// Session implements Sink.
func (m *SQLiteMirror) Session(ctx context.Context, evt SessionEvent) error {
	doc, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	var endTs any
	if evt.EndTs != nil {
		endTs = *evt.EndTs
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, mode, start_ts, end_ts, completed, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		evt.SessionID, evt.UserID, evt.Mode, evt.StartTs, endTs, evt.Completed, string(doc))
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// ReadMirroredAttempts loads every attempt row back out, for the analyzer's
// external-table path.
func (m *SQLiteMirror) ReadMirroredAttempts(ctx context.Context) ([]AttemptEvent, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT doc FROM attempts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []AttemptEvent
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan attempt row: %w", err)
		}
		var evt AttemptEvent
		if err := json.Unmarshal([]byte(doc), &evt); err != nil {
			logging.IngestDebug("skipping corrupt attempt row: %v", err)
			continue
		}
		attempts = append(attempts, evt)
	}
	return attempts, rows.Err()
}
