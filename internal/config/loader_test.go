package config_test

import (
	"strings"
	"testing"

	"github.com/anvilane/slovoday/internal/config"
)

const fullConfig = `
server:
  listen_addr: ":9090"
  log_level: debug
providers:
  recognizer:
    name: whisper
    base_url: http://localhost:8178
    model: ggml-base
  speech:
    name: coqui
    base_url: http://localhost:5002
storage:
  backend: sqlite
  path: /var/lib/slovoday/progress.db
vocabulary:
  path: /etc/slovoday/words.yaml
practice:
  language: ru-RU
  capture_timeout_ms: 7000
  auto_close_ms: 2000
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(fullConfig))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Providers.Recognizer.Name != "whisper" || cfg.Providers.Recognizer.Model != "ggml-base" {
		t.Errorf("Recognizer = %+v, want whisper/ggml-base", cfg.Providers.Recognizer)
	}
	if cfg.Providers.Speech.BaseURL != "http://localhost:5002" {
		t.Errorf("Speech.BaseURL = %q", cfg.Providers.Speech.BaseURL)
	}
	if cfg.Storage.Backend != config.StorageSQLite || cfg.Storage.Path != "/var/lib/slovoday/progress.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Vocabulary.Path != "/etc/slovoday/words.yaml" {
		t.Errorf("Vocabulary.Path = %q", cfg.Vocabulary.Path)
	}
	if cfg.Practice.CaptureTimeoutMs != 7000 || cfg.Practice.AutoCloseMs != 2000 {
		t.Errorf("Practice = %+v", cfg.Practice)
	}
}

func TestLoadFromReader_EmptyConfigGetsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}

	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("ListenAddr = %q, want default %q", cfg.Server.ListenAddr, config.DefaultListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Storage.Backend != config.StorageSQLite || cfg.Storage.Path != config.DefaultStoragePath {
		t.Errorf("Storage = %+v, want sqlite with default path", cfg.Storage)
	}
	if cfg.Practice.Language != config.DefaultLanguage {
		t.Errorf("Language = %q, want %q", cfg.Practice.Language, config.DefaultLanguage)
	}
	if cfg.Practice.CaptureTimeoutMs != config.DefaultCaptureTimeoutMs {
		t.Errorf("CaptureTimeoutMs = %d, want %d", cfg.Practice.CaptureTimeoutMs, config.DefaultCaptureTimeoutMs)
	}
	if cfg.Practice.AutoCloseMs != config.DefaultAutoCloseMs {
		t.Errorf("AutoCloseMs = %d, want %d", cfg.Practice.AutoCloseMs, config.DefaultAutoCloseMs)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	in := `
server:
  listen_address: ":8080"
`
	if _, err := config.LoadFromReader(strings.NewReader(in)); err == nil {
		t.Error("LoadFromReader() error = nil for unknown field, want non-nil")
	}
}

func TestLoadFromReader_InvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{"bad log level", "server:\n  log_level: loud"},
		{"bad storage backend", "storage:\n  backend: postgres"},
		{"file backend without path", "storage:\n  backend: file"},
		{"recognizer without base_url", "providers:\n  recognizer:\n    name: whisper"},
		{"speech without base_url", "providers:\n  speech:\n    name: coqui"},
		{"negative capture timeout", "practice:\n  capture_timeout_ms: -1"},
		{"negative auto close", "practice:\n  auto_close_ms: -5"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := config.LoadFromReader(strings.NewReader(tc.in)); err == nil {
				t.Errorf("LoadFromReader() error = nil, want validation failure")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := config.Load("/does/not/exist.yaml"); err == nil {
		t.Error("Load() error = nil for missing file, want non-nil")
	}
}
