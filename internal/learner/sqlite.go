package learner

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/yinkev/studyin/internal/logging"
)

// SQLiteStore keeps each learner document as a row in a local SQLite table.
// Same contract as FileStore; chosen when a single-file database is easier to
// ship than a directory of documents.
type SQLiteStore struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSQLiteStore opens (and initializes) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteStore")
	defer timer.Stop()

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
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS learner_state (
		learner_id TEXT PRIMARY KEY,
		updated_at TEXT NOT NULL,
		doc TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.Store("SQLiteStore ready at %s", path)
	return &SQLiteStore{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) lockFor(learnerID string) *sync.Mutex {
	key := SanitizeID(learnerID)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *SQLiteStore) loadLocked(ctx context.Context, learnerID string) (*State, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM learner_state WHERE learner_id = ?`, SanitizeID(learnerID)).Scan(&doc)
	if err == sql.ErrNoRows {
		return NewState(learnerID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read learner state: %w", err)
	}
	var st State
	if err := json.Unmarshal([]byte(doc), &st); err != nil {
		logging.Get(logging.CategoryStore).Warn("corrupt state row for %s, starting fresh: %v", learnerID, err)
		return NewState(learnerID), nil
	}
	return Sanitize(&st, learnerID), nil
}

func (s *SQLiteStore) saveLocked(ctx context.Context, learnerID string, state *State) (*State, error) {
	st := Sanitize(state, learnerID)
	st.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	doc, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to encode learner state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO learner_state (learner_id, updated_at, doc) VALUES (?, ?, ?)
		ON CONFLICT(learner_id) DO UPDATE SET updated_at = excluded.updated_at, doc = excluded.doc`,
		SanitizeID(learnerID), st.UpdatedAt, string(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to write learner state: %w", err)
	}
	return st, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, learnerID string) (*State, error) {
	lock := s.lockFor(learnerID)
	lock.Lock()
	defer lock.Unlock()
	return s.loadLocked(ctx, learnerID)
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, learnerID string, state *State) (*State, error) {
	lock := s.lockFor(learnerID)
	lock.Lock()
	defer lock.Unlock()
	return s.saveLocked(ctx, learnerID, state)
}

// UpdateLoState implements Store.
func (s *SQLiteStore) UpdateLoState(ctx context.Context, learnerID, loID string, update func(*LoState)) error {
	lock := s.lockFor(learnerID)
	lock.Lock()
	defer lock.Unlock()

	st, err := s.loadLocked(ctx, learnerID)
	if err != nil {
		return err
	}
	update(st.Lo(loID))
	_, err = s.saveLocked(ctx, learnerID, st)
	return err
}

// RecordItemExposure implements Store.
func (s *SQLiteStore) RecordItemExposure(ctx context.Context, learnerID, itemID string, correct bool, ts int64) error {
	lock := s.lockFor(learnerID)
	lock.Lock()
	defer lock.Unlock()

	st, err := s.loadLocked(ctx, learnerID)
	if err != nil {
		return err
	}
	item := st.Item(itemID)
	item.Attempts++
	if correct {
		item.Correct++
	}
	item.LastAttemptTs = ts
	item.RecentAttempts = PushWindowInt64(item.RecentAttempts, ts, RecentAttemptsWindow)
	_, err = s.saveLocked(ctx, learnerID, st)
	return err
}
