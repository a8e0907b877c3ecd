// Package config collects all recognized environment variables into a single
// immutable Config at startup. Nothing else in the engine reads the
// environment; handlers and services receive the struct.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Studyin configuration. Built once at startup and treated
// as read-only afterwards.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// HTTP listen address, e.g. ":8080"
	Addr string `yaml:"addr"`

	// Debug enables categorized file logging and zap debug level.
	Debug bool `yaml:"debug"`

	// LogLevel: debug, info, warn, error
	LogLevel string `yaml:"log_level"`

	// Content locations
	BlueprintPath string   `yaml:"blueprint_path"`
	LosPath       string   `yaml:"los_path"`
	ScopeDirs     []string `yaml:"scope_dirs"`

	// Learner-state persistence directory
	StateDir string `yaml:"state_dir"`

	// StateBackend picks the store implementation: "file" (one JSON document
	// per learner) or "sqlite" (a row per learner in <state_dir>/learner.db).
	StateBackend string `yaml:"state_backend"`

	// Analyzer
	EventsPath       string `yaml:"events_path"`
	AnalyticsOutPath string `yaml:"analytics_out_path"`
	EvidencePath     string `yaml:"evidence_path"`

	// Telemetry ingest
	Ingest IngestConfig `yaml:"ingest"`

	// Optional Supabase mirror
	Supabase SupabaseConfig `yaml:"supabase"`

	// Per-request deadline for HTTP handlers
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// IngestConfig bounds the telemetry ingest pipeline.
type IngestConfig struct {
	// WriteTelemetry gates the NDJSON append. Disabled via WRITE_TELEMETRY=0.
	WriteTelemetry bool `yaml:"write_telemetry"`

	// Token, when non-empty, is the required bearer token.
	Token string `yaml:"token"`

	// Fixed-window rate limit.
	WindowMs  int64 `yaml:"window_ms"`
	WindowMax int   `yaml:"window_max"`

	// MaxBytes is the largest accepted request body.
	MaxBytes int64 `yaml:"max_bytes"`

	// SQLitePath, when non-empty, mirrors accepted events into local
	// attempts/sessions tables instead of the NDJSON log.
	SQLitePath string `yaml:"sqlite_path"`
}

// SupabaseConfig configures the optional external-table mirror.
type SupabaseConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`
	ServiceRoleKey string `yaml:"service_role_key"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Name:             "studyin",
		Version:          "1.1.0",
		Addr:             ":8080",
		LogLevel:         "info",
		BlueprintPath:    filepath.Join("config", "blueprint.json"),
		LosPath:          filepath.Join("config", "los.json"),
		ScopeDirs:        []string{filepath.Join("content", "banks")},
		StateDir:         filepath.Join("data", "learner-state"),
		StateBackend:     "file",
		EventsPath:       filepath.Join("data", "events.ndjson"),
		AnalyticsOutPath: filepath.Join("public", "analytics", "latest.json"),
		EvidencePath:     filepath.Join("data", "evidence_chunks.ndjson"),
		Ingest: IngestConfig{
			WriteTelemetry: true,
			WindowMs:       60_000,
			WindowMax:      60,
			MaxBytes:       10 * 1024,
		},
		RequestTimeout: 10 * time.Second,
	}
}

// FromEnv builds the config from defaults, an optional YAML overlay, and the
// recognized environment variables (env wins over file).
func FromEnv() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("STUDYIN_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat(filepath.Join("config", "studyin.yaml")); err == nil {
		if err := cfg.loadFile(filepath.Join("config", "studyin.yaml")); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("STUDYIN_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("STUDYIN_DEBUG"); v != "" {
		cfg.Debug = truthy(v)
	}
	if v := os.Getenv("BLUEPRINT_PATH"); v != "" {
		cfg.BlueprintPath = v
	}
	if v := os.Getenv("LOS_PATH"); v != "" {
		cfg.LosPath = v
	}
	if v := os.Getenv("SCOPE_DIRS"); v != "" {
		dirs := strings.Split(v, string(os.PathListSeparator))
		if len(dirs) == 1 && strings.Contains(v, ",") {
			dirs = strings.Split(v, ",")
		}
		cfg.ScopeDirs = cfg.ScopeDirs[:0]
		for _, d := range dirs {
			if d = strings.TrimSpace(d); d != "" {
				cfg.ScopeDirs = append(cfg.ScopeDirs, d)
			}
		}
	}
	if v := os.Getenv("STUDY_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("STUDY_STATE_BACKEND"); v != "" {
		if v != "file" && v != "sqlite" {
			return nil, fmt.Errorf("invalid STUDY_STATE_BACKEND %q (want file or sqlite)", v)
		}
		cfg.StateBackend = v
	}
	if v := os.Getenv("ANALYTICS_OUT_PATH"); v != "" {
		cfg.AnalyticsOutPath = v
	}

	// Telemetry ingest bounds
	if v := os.Getenv("WRITE_TELEMETRY"); v != "" {
		cfg.Ingest.WriteTelemetry = !(v == "0" || strings.EqualFold(v, "false"))
	}
	cfg.Ingest.Token = os.Getenv("INGEST_TOKEN")
	if v := os.Getenv("INGEST_SQLITE_PATH"); v != "" {
		cfg.Ingest.SQLitePath = v
	}
	if v := os.Getenv("INGEST_WINDOW_MS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid INGEST_WINDOW_MS %q", v)
		}
		cfg.Ingest.WindowMs = n
	}
	if v := os.Getenv("INGEST_WINDOW_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid INGEST_WINDOW_MAX %q", v)
		}
		cfg.Ingest.WindowMax = n
	}
	if v := os.Getenv("INGEST_MAX_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid INGEST_MAX_BYTES %q", v)
		}
		cfg.Ingest.MaxBytes = n
	}

	// Supabase mirror
	if truthy(os.Getenv("USE_SUPABASE_INGEST")) {
		cfg.Supabase.Enabled = true
		cfg.Supabase.URL = os.Getenv("SUPABASE_URL")
		cfg.Supabase.ServiceRoleKey = os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
		if cfg.Supabase.URL == "" || cfg.Supabase.ServiceRoleKey == "" {
			return nil, fmt.Errorf("USE_SUPABASE_INGEST set but SUPABASE_URL or SUPABASE_SERVICE_ROLE_KEY missing")
		}
	}

	return cfg, nil
}

// loadFile overlays a YAML config file onto cfg.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// SnapshotDir returns the directory for per-learner state snapshot logs.
func (c *Config) SnapshotDir() string {
	return filepath.Join(c.StateDir, "snapshots")
}

// LessonsDir returns the directory lesson artifacts are written to.
func (c *Config) LessonsDir() string {
	return filepath.Join(c.StateDir, "lessons")
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
