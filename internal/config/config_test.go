package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Ingest.WindowMs != 60_000 {
		t.Errorf("WindowMs = %d, want 60000", cfg.Ingest.WindowMs)
	}
	if cfg.Ingest.WindowMax != 60 {
		t.Errorf("WindowMax = %d, want 60", cfg.Ingest.WindowMax)
	}
	if cfg.Ingest.MaxBytes != 10*1024 {
		t.Errorf("MaxBytes = %d, want 10 KiB", cfg.Ingest.MaxBytes)
	}
	if !cfg.Ingest.WriteTelemetry {
		t.Error("telemetry writes should default to enabled")
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INGEST_WINDOW_MS", "1000")
	t.Setenv("INGEST_WINDOW_MAX", "3")
	t.Setenv("INGEST_MAX_BYTES", "2048")
	t.Setenv("INGEST_TOKEN", "secret")
	t.Setenv("WRITE_TELEMETRY", "false")
	t.Setenv("STUDY_STATE_DIR", "/tmp/studyin-state")
	t.Setenv("SCOPE_DIRS", "banks/a,banks/b")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Ingest.WindowMs != 1000 || cfg.Ingest.WindowMax != 3 || cfg.Ingest.MaxBytes != 2048 {
		t.Errorf("ingest bounds not applied: %+v", cfg.Ingest)
	}
	if cfg.Ingest.Token != "secret" {
		t.Errorf("Token = %q", cfg.Ingest.Token)
	}
	if cfg.Ingest.WriteTelemetry {
		t.Error("WRITE_TELEMETRY=false should disable appends")
	}
	if cfg.StateDir != "/tmp/studyin-state" {
		t.Errorf("StateDir = %q", cfg.StateDir)
	}
	if len(cfg.ScopeDirs) != 2 || cfg.ScopeDirs[0] != "banks/a" || cfg.ScopeDirs[1] != "banks/b" {
		t.Errorf("ScopeDirs = %v", cfg.ScopeDirs)
	}
}

func TestStateBackendOverride(t *testing.T) {
	t.Setenv("STUDY_STATE_BACKEND", "sqlite")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.StateBackend != "sqlite" {
		t.Errorf("StateBackend = %q", cfg.StateBackend)
	}

	t.Setenv("STUDY_STATE_BACKEND", "redis")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestInvalidEnvRejected(t *testing.T) {
	t.Setenv("INGEST_WINDOW_MS", "not-a-number")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for invalid INGEST_WINDOW_MS")
	}
}

func TestSupabaseRequiresCredentials(t *testing.T) {
	t.Setenv("USE_SUPABASE_INGEST", "1")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error when mirror enabled without credentials")
	}
}
