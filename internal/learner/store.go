package learner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yinkev/studyin/internal/logging"
)

// Store is the learner-state persistence contract. Load never fails on a
// missing learner; it returns a default-initialized document. All mutating
// operations on a single learner are linearized by the implementation.
type Store interface {
	Load(ctx context.Context, learnerID string) (*State, error)
	Save(ctx context.Context, learnerID string, state *State) (*State, error)
	UpdateLoState(ctx context.Context, learnerID, loID string, update func(*LoState)) error
	RecordItemExposure(ctx context.Context, learnerID, itemID string, correct bool, ts int64) error
}

// FileStore keeps one JSON document per learner under a directory. Writes go
// through a temp file and rename so a crash never leaves a torn document.
type FileStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	logging.Store("FileStore ready at %s", dir)
	return &FileStore{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// lockFor returns the per-learner mutex, keyed by sanitized id.
func (f *FileStore) lockFor(learnerID string) *sync.Mutex {
	key := SanitizeID(learnerID)
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[key]
	if !ok {
		l = &sync.Mutex{}
		f.locks[key] = l
	}
	return l
}

func (f *FileStore) path(learnerID string) string {
	return filepath.Join(f.dir, SanitizeID(learnerID)+".json")
}

// Load reads and sanitizes a learner document, or returns a fresh default.
func (f *FileStore) Load(ctx context.Context, learnerID string) (*State, error) {
	lock := f.lockFor(learnerID)
	lock.Lock()
	defer lock.Unlock()
	return f.loadLocked(ctx, learnerID)
}

func (f *FileStore) loadLocked(ctx context.Context, learnerID string) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(learnerID))
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(learnerID), nil
		}
		return nil, fmt.Errorf("failed to read learner state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		// A corrupt document is replaced rather than wedging the learner.
		logging.Get(logging.CategoryStore).Warn("corrupt state for %s, starting fresh: %v", learnerID, err)
		return NewState(learnerID), nil
	}
	return Sanitize(&st, learnerID), nil
}

// Save sanitizes, stamps updatedAt and persists via write-then-rename.
func (f *FileStore) Save(ctx context.Context, learnerID string, state *State) (*State, error) {
	lock := f.lockFor(learnerID)
	lock.Lock()
	defer lock.Unlock()
	return f.saveLocked(ctx, learnerID, state)
}

func (f *FileStore) saveLocked(ctx context.Context, learnerID string, state *State) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st := Sanitize(state, learnerID)
	st.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode learner state: %w", err)
	}

	final := f.path(learnerID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write learner state: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to replace learner state: %w", err)
	}
	logging.StoreDebug("saved state for %s (%d LOs, %d items)", learnerID, len(st.Los), len(st.Items))
	return st, nil
}

// UpdateLoState is an atomic read-modify-write of one LO state.
func (f *FileStore) UpdateLoState(ctx context.Context, learnerID, loID string, update func(*LoState)) error {
	lock := f.lockFor(learnerID)
	lock.Lock()
	defer lock.Unlock()

	st, err := f.loadLocked(ctx, learnerID)
	if err != nil {
		return err
	}
	update(st.Lo(loID))
	_, err = f.saveLocked(ctx, learnerID, st)
	return err
}

// RecordItemExposure is an atomic read-modify-write of one item state.
func (f *FileStore) RecordItemExposure(ctx context.Context, learnerID, itemID string, correct bool, ts int64) error {
	lock := f.lockFor(learnerID)
	lock.Lock()
	defer lock.Unlock()

	st, err := f.loadLocked(ctx, learnerID)
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
	_, err = f.saveLocked(ctx, learnerID, st)
	return err
}
