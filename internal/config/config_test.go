package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"clipforge/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Workflow.MaxConcurrency != 5 {
		t.Fatalf("unexpected default concurrency: %d", cfg.Workflow.MaxConcurrency)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if cfg.Workflow.QueuePollInterval != 5 {
		t.Fatalf("defaults not applied: %#v", cfg.Workflow)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := []byte("[workflow]\nmax_concurrency = 2\n\n[logging]\nformat = \"json\"\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.Workflow.MaxConcurrency != 2 {
		t.Fatalf("override not applied: %d", cfg.Workflow.MaxConcurrency)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("logging format override not applied: %q", cfg.Logging.Format)
	}
}

func TestValidateRejectsBadConcurrency(t *testing.T) {
	cfg := config.Default()
	cfg.Workflow.MaxConcurrency = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero concurrency")
	}
}

func TestValidateRejectsBadLogFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported log format")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("sample file missing: %v", err)
	}
}
