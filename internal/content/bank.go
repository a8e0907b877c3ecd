package content

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yinkev/studyin/internal/logging"
)

// loadConcurrency bounds parallel item-file reads during a bank load.
const loadConcurrency = 8

// Bank is an immutable snapshot of the loaded item bank.
type Bank struct {
	Items    []Item
	Los      map[string]LearningObjective
	LoadedAt time.Time

	byID map[string]*Item
}

// Item returns the item with the given id.
func (b *Bank) Item(id string) (*Item, bool) {
	it, ok := b.byID[id]
	return it, ok
}

// Published returns the items servable to learners.
func (b *Bank) Published() []Item {
	var out []Item
	for _, it := range b.Items {
		if it.Status == "published" {
			out = append(out, it)
		}
	}
	return out
}

// ItemsForLo returns the published items covering the LO.
func (b *Bank) ItemsForLo(loID string) []Item {
	var out []Item
	for _, it := range b.Items {
		if it.Status != "published" {
			continue
		}
		for _, lo := range it.Los {
			if lo == loID {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

// FileIssue reports a bank file that failed to load or validate.
type FileIssue struct {
	Path   string  `json:"path"`
	Err    error   `json:"-"`
	Issues []Issue `json:"issues,omitempty"`
}

func (f FileIssue) String() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Path, f.Err)
	}
	parts := make([]string, len(f.Issues))
	for i, issue := range f.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("%s: %s", f.Path, strings.Join(parts, "; "))
}

// LoadBank walks the scope directories for *.item.json files, parses and
// validates them concurrently, and returns the bank plus per-file problems.
// Invalid items are reported and excluded, never fatal; only an unreadable
// directory fails the load.
func LoadBank(ctx context.Context, scopeDirs []string, losPath string) (*Bank, []FileIssue, error) {
	timer := logging.StartTimer(logging.CategoryContent, "LoadBank")
	defer timer.Stop()

	var paths []string
	for _, dir := range scopeDirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".item.json") {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			if os.IsNotExist(err) {
				logging.Content("scope dir %s missing, skipping", dir)
				continue
			}
			return nil, nil, fmt.Errorf("failed to walk %s: %w", dir, err)
		}
	}
	sort.Strings(paths)

	var (
		mu     sync.Mutex
		items  []Item
		issues []FileIssue
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				mu.Lock()
				issues = append(issues, FileIssue{Path: path, Err: err})
				mu.Unlock()
				return nil
			}
			var it Item
			if err := json.Unmarshal(data, &it); err != nil {
				mu.Lock()
				issues = append(issues, FileIssue{Path: path, Err: err})
				mu.Unlock()
				return nil
			}
			if found := it.Validate(); len(found) > 0 {
				mu.Lock()
				issues = append(issues, FileIssue{Path: path, Issues: found})
				mu.Unlock()
				return nil
			}
			mu.Lock()
			items = append(items, it)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// Parallel loads finish in arbitrary order; keep the bank deterministic.
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	los, err := LoadLos(losPath)
	if err != nil {
		return nil, nil, err
	}

	bank := &Bank{Items: items, Los: los, LoadedAt: time.Now(), byID: make(map[string]*Item, len(items))}
	for i := range bank.Items {
		bank.byID[bank.Items[i].ID] = &bank.Items[i]
	}
	logging.Content("bank loaded: %d items, %d LOs, %d problem files", len(items), len(los), len(issues))
	return bank, issues, nil
}

// LoadLos reads the learning-objective list. A missing file yields an empty
// map so a bank can load before any LOs are authored.
func LoadLos(path string) (map[string]LearningObjective, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]LearningObjective{}, nil
		}
		return nil, fmt.Errorf("failed to read LOs: %w", err)
	}
	var list []LearningObjective
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse LOs: %w", err)
	}
	los := make(map[string]LearningObjective, len(list))
	for _, lo := range list {
		los[lo.ID] = lo
	}
	return los, nil
}
