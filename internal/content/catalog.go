package content

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yinkev/studyin/internal/logging"
)

// Catalog owns the live bank snapshot. Readers call Bank() and get an
// immutable *Bank; Reload builds a new snapshot and swaps the pointer
// atomically, so in-flight requests keep the bank they started with.
type Catalog struct {
	scopeDirs []string
	losPath   string
	bank      atomic.Pointer[Bank]

	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewCatalog builds a catalog over the scope directories. Call Reload before
// serving.
func NewCatalog(scopeDirs []string, losPath string) *Catalog {
	c := &Catalog{
		scopeDirs:   scopeDirs,
		losPath:     losPath,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
	}
	c.bank.Store(&Bank{Los: map[string]LearningObjective{}, byID: map[string]*Item{}})
	return c
}

// Bank returns the current snapshot. Never nil.
func (c *Catalog) Bank() *Bank { return c.bank.Load() }

// Reload rebuilds the bank from disk and swaps it in.
func (c *Catalog) Reload(ctx context.Context) ([]FileIssue, error) {
	bank, issues, err := LoadBank(ctx, c.scopeDirs, c.losPath)
	if err != nil {
		return nil, err
	}
	c.bank.Store(bank)
	return issues, nil
}

// Watch starts hot reload: any settled change to a *.item.json file under
// the scope directories triggers a Reload. Non-blocking; stop with Stop or
// by cancelling ctx.
func (c *Catalog) Watch(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range c.scopeDirs {
		// fsnotify is not recursive; register every subdirectory.
		walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			if addErr := watcher.Add(path); addErr != nil {
				logging.Get(logging.CategoryContent).Warn("failed to watch %s: %v", path, addErr)
			}
			return nil
		})
		if walkErr != nil {
			logging.Get(logging.CategoryContent).Warn("failed to walk %s for watching: %v", dir, walkErr)
		}
	}

	c.watcher = watcher
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.running = true
	go c.run(ctx)
	logging.Content("bank watcher started over %v", c.scopeDirs)
	return nil
}

// Stop halts the watcher and waits for the loop to exit.
func (c *Catalog) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stopCh, doneCh, watcher := c.stopCh, c.doneCh, c.watcher
	c.mu.Unlock()

	close(stopCh)
	<-doneCh
	watcher.Close()
}

func (c *Catalog) run(ctx context.Context) {
	defer close(c.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			c.handleEvent(event)
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryContent).Error("bank watcher error: %v", err)
		case <-ticker.C:
			c.processDebounced(ctx)
		}
	}
}

func (c *Catalog) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	// A new directory needs its own watch; new files inside it then flow in.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := c.watcher.Add(event.Name); err == nil {
				logging.Content("watching new directory %s", event.Name)
			}
			return
		}
	}
	if !strings.HasSuffix(event.Name, ".item.json") {
		return
	}
	c.mu.Lock()
	c.debounceMap[event.Name] = time.Now()
	c.mu.Unlock()
}

func (c *Catalog) processDebounced(ctx context.Context) {
	c.mu.Lock()
	now := time.Now()
	settled := false
	for path, eventTime := range c.debounceMap {
		if now.Sub(eventTime) >= c.debounceDur {
			delete(c.debounceMap, path)
			settled = true
		}
	}
	c.mu.Unlock()

	if !settled {
		return
	}
	if _, err := c.Reload(ctx); err != nil {
		logging.Get(logging.CategoryContent).Error("bank reload failed: %v", err)
	}
}
