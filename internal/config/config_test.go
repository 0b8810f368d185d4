package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"capnote/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.InboxDir = filepath.Join(base, "inbox")

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Workflow.Workers != 2 {
		t.Fatalf("expected default workers, got %d", cfg.Workflow.Workers)
	}
	if cfg.Transcription.Model != "whisper-1" {
		t.Fatalf("expected default model, got %q", cfg.Transcription.Model)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "config.toml")
	content := strings.Join([]string{
		"[paths]",
		`data_dir = "` + filepath.Join(base, "data") + `"`,
		`log_dir = "` + filepath.Join(base, "logs") + `"`,
		`inbox_dir = "` + filepath.Join(base, "inbox") + `"`,
		"[storage]",
		`base_url = "https://example.test/drive/"`,
		`token_path = "` + filepath.Join(base, "token") + `"`,
		"[recorder]",
		`extensions = ["M4A", "wav"]`,
		"[workflow]",
		"retry_backoff_base = 7",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Storage.BaseURL != "https://example.test/drive" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Storage.BaseURL)
	}
	if cfg.Storage.ProbeURL != cfg.Storage.BaseURL {
		t.Fatalf("expected probe url to default to base url, got %q", cfg.Storage.ProbeURL)
	}
	if cfg.Workflow.RetryBackoffBase != 7 {
		t.Fatalf("expected backoff base 7, got %d", cfg.Workflow.RetryBackoffBase)
	}
	if !cfg.AcceptsExtension(".m4a") || !cfg.AcceptsExtension(".wav") {
		t.Fatalf("expected normalized extensions, got %v", cfg.Recorder.Extensions)
	}
	if cfg.AcceptsExtension(".mp3") {
		t.Fatal("expected mp3 to be rejected when not configured")
	}
}

func TestValidateRejectsBadFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported log format")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[storage]") {
		t.Fatal("sample config missing storage section")
	}

	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
}
