package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/redactqc/redactqc/internal/config"
)

func TestLoadDefaultsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, want debug (explicit value should survive defaulting)", cfg.LogLevel)
	}
	if cfg.HTTPAddr == "" {
		t.Error("expected default http_addr to be set")
	}
	if cfg.DataDir == "" {
		t.Error("expected default data_dir to be set")
	}
	if cfg.OCRDPI != 300 {
		t.Errorf("ocr_dpi default = %d, want 300", cfg.OCRDPI)
	}
	if cfg.NativeMinChars != 50 {
		t.Errorf("native_min_chars default = %d, want 50", cfg.NativeMinChars)
	}
	if cfg.DefaultWorkerCount < 1 {
		t.Errorf("default_worker_count = %d, want >= 1", cfg.DefaultWorkerCount)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ReportsRetentionDays != 30 {
		t.Errorf("reports_retention_days = %d, want 30", cfg.ReportsRetentionDays)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("not_a_real_field: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := config.Load(path); err == nil {
		t.Error("expected an error for an unrecognized config key")
	}
}

func TestDBPathAndReportsDirDeriveFromDataDir(t *testing.T) {
	cfg := &config.Config{DataDir: "/tmp/redactqc-data"}
	if got, want := cfg.DBPath(), filepath.Join("/tmp/redactqc-data", "redactqc.db"); got != want {
		t.Errorf("DBPath() = %q, want %q", got, want)
	}
	if got, want := cfg.ReportsDir(), filepath.Join("/tmp/redactqc-data", "reports"); got != want {
		t.Errorf("ReportsDir() = %q, want %q", got, want)
	}
}
