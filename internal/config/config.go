// Package config loads RedactQC's YAML configuration file, falling back to
// built-in defaults when absent, mirroring the teacher's internal/config.Load
// shape.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration loaded from config.yaml.
type Config struct {
	DataDir                    string  `yaml:"data_dir"`
	HTTPAddr                   string  `yaml:"http_addr"`
	LogLevel                   string  `yaml:"log_level"`
	DefaultConfidenceThreshold float64 `yaml:"default_confidence_threshold"`
	DefaultWorkerCount         int     `yaml:"default_worker_count"`
	OCRDPI                     int     `yaml:"ocr_dpi"`
	NativeMinChars             int     `yaml:"native_min_chars"`
	ContextMaxBytes            int     `yaml:"context_max_bytes"`
	ChunkSize                  int     `yaml:"chunk_size"`
	ReportsRetentionDays       int     `yaml:"reports_retention_days"`
	TesseractCmd               string  `yaml:"tesseract_cmd"`
}

// DBPath returns the SQLite database path per §6's on-disk layout.
func (c *Config) DBPath() string { return filepath.Join(c.DataDir, "redactqc.db") }

// ReportsDir returns the report output directory per §6's on-disk layout.
func (c *Config) ReportsDir() string { return filepath.Join(c.DataDir, "reports") }

// applyDefaults fills zero-value fields with the defaults spec.md names.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = "127.0.0.1:8000"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DefaultConfidenceThreshold == 0 {
		c.DefaultConfidenceThreshold = 0.4
	}
	if c.DefaultWorkerCount == 0 {
		c.DefaultWorkerCount = defaultWorkerCount()
	}
	if c.OCRDPI == 0 {
		c.OCRDPI = 300
	}
	if c.NativeMinChars == 0 {
		c.NativeMinChars = 50
	}
	if c.ContextMaxBytes == 0 {
		c.ContextMaxBytes = 80
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 100
	}
	if c.ReportsRetentionDays == 0 {
		c.ReportsRetentionDays = 30
	}
	if c.TesseractCmd == "" {
		c.TesseractCmd = "tesseract"
	}
}

// defaultDataDir mirrors original_source's _default_data_dir(): an
// XDG_DATA_HOME/LOCALAPPDATA-aware per-user application data directory.
func defaultDataDir() string {
	if runtime.GOOS == "windows" {
		if base := os.Getenv("LOCALAPPDATA"); base != "" {
			return filepath.Join(base, "redact-qc")
		}
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		return filepath.Join(home, "AppData", "Local", "redact-qc")
	}
	if base := os.Getenv("XDG_DATA_HOME"); base != "" {
		return filepath.Join(base, "redact-qc")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".local", "share", "redact-qc")
}

// defaultWorkerCount mirrors original_source's max(1, cpu_count - 1).
func defaultWorkerCount() int {
	if n := runtime.NumCPU() - 1; n > 0 {
		return n
	}
	return 1
}

// Load reads and parses the YAML config file at path. If the file does not
// exist, Load returns a default Config so the server can start without a
// mounted config file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		var cfg Config
		cfg.applyDefaults()
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}
