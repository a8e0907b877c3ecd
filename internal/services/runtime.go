package services

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/yinkev/studyin/internal/bus"
	"github.com/yinkev/studyin/internal/config"
	"github.com/yinkev/studyin/internal/engine"
	"github.com/yinkev/studyin/internal/learner"
	"github.com/yinkev/studyin/internal/logging"
	"github.com/yinkev/studyin/internal/telemetry"
)

// Runtime bundles the engine, the bus, the registered services and the
// telemetry pipeline. Construct explicitly with NewRuntime, or use
// EnsureRuntime for the process-wide instance shared by HTTP handlers.
type Runtime struct {
	Cfg     *config.Config
	Bus     *bus.Bus
	Engine  *engine.Engine
	Store   learner.Store
	Sink    telemetry.Sink
	Limiter *telemetry.RateLimiter

	State   *StateService
	Lessons *LessonService
}

var (
	runtimeMu   sync.Mutex
	runtimeInst *Runtime
)

// EnsureRuntime returns the process-wide runtime, building it on first call.
func EnsureRuntime(cfg *config.Config) (*Runtime, error) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if runtimeInst != nil {
		return runtimeInst, nil
	}
	rt, err := NewRuntime(cfg)
	if err != nil {
		return nil, err
	}
	runtimeInst = rt
	return rt, nil
}

// NewRuntime wires a fresh runtime from cfg.
func NewRuntime(cfg *config.Config) (*Runtime, error) {
	var store learner.Store
	var err error
	if cfg.StateBackend == "sqlite" {
		store, err = learner.NewSQLiteStore(filepath.Join(cfg.StateDir, "learner.db"))
	} else {
		store, err = learner.NewFileStore(cfg.StateDir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open learner store: %w", err)
	}

	var sink telemetry.Sink
	switch {
	case cfg.Supabase.Enabled:
		sink, err = telemetry.NewSupabaseMirror(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey)
		if err != nil {
			return nil, fmt.Errorf("failed to build supabase mirror: %w", err)
		}
	case cfg.Ingest.SQLitePath != "":
		sink, err = telemetry.NewSQLiteMirror(cfg.Ingest.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite mirror: %w", err)
		}
	default:
		sink = telemetry.NewFileSink(cfg.EventsPath, cfg.Ingest.WriteTelemetry)
	}

	b := bus.New()
	eng := engine.New(cfg.Name, cfg.Version)
	rt := &Runtime{
		Cfg:     cfg,
		Bus:     b,
		Engine:  eng,
		Store:   store,
		Sink:    sink,
		Limiter: telemetry.NewRateLimiter(time.Duration(cfg.Ingest.WindowMs)*time.Millisecond, cfg.Ingest.WindowMax),
		State:   NewStateService(b, eng, store, cfg.SnapshotDir()),
		Lessons: NewLessonService(b, cfg.LessonsDir()),
	}
	logging.Boot("runtime wired: store=%s sink=%T", cfg.StateDir, sink)
	return rt, nil
}

// Close unregisters the services and releases any backing handles. The
// runtime is not reusable afterwards.
func (rt *Runtime) Close() {
	rt.State.Close()
	rt.Lessons.Close()
	if c, ok := rt.Store.(io.Closer); ok {
		_ = c.Close()
	}
	if c, ok := rt.Sink.(io.Closer); ok {
		_ = c.Close()
	}
}
