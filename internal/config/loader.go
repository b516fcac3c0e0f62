package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"recognizer": {"whisper"},
	"speech":     {"coqui"},
}

// Defaults applied by [LoadFromReader] for fields left empty.
const (
	DefaultListenAddr       = ":8080"
	DefaultLanguage         = "ru-RU"
	DefaultCaptureTimeoutMs = 5000
	DefaultAutoCloseMs      = 3000
	DefaultStoragePath      = "slovoday.db"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults, and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in the documented defaults for fields left empty.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageSQLite
	}
	if cfg.Storage.Backend == StorageSQLite && cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Practice.Language == "" {
		cfg.Practice.Language = DefaultLanguage
	}
	if cfg.Practice.CaptureTimeoutMs == 0 {
		cfg.Practice.CaptureTimeoutMs = DefaultCaptureTimeoutMs
	}
	if cfg.Practice.AutoCloseMs == 0 {
		cfg.Practice.AutoCloseMs = DefaultAutoCloseMs
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("recognizer", cfg.Providers.Recognizer.Name)
	validateProviderName("speech", cfg.Providers.Speech.Name)

	if cfg.Providers.Recognizer.Name != "" && cfg.Providers.Recognizer.BaseURL == "" {
		errs = append(errs, fmt.Errorf("providers.recognizer.base_url is required when providers.recognizer.name is set"))
	}
	if cfg.Providers.Speech.Name != "" && cfg.Providers.Speech.BaseURL == "" {
		errs = append(errs, fmt.Errorf("providers.speech.base_url is required when providers.speech.name is set"))
	}

	// Practice availability warnings
	if cfg.Providers.Recognizer.Name == "" {
		slog.Warn("no recognizer provider configured; pronunciation practice will report unsupported")
	}
	if cfg.Providers.Speech.Name == "" {
		slog.Warn("no speech provider configured; word playback will report unsupported")
	}

	// Storage
	if !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: memory, file, sqlite", cfg.Storage.Backend))
	}
	if (cfg.Storage.Backend == StorageFile || cfg.Storage.Backend == StorageSQLite) && cfg.Storage.Path == "" {
		errs = append(errs, fmt.Errorf("storage.path is required for backend %q", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == StorageMemory {
		slog.Warn("storage.backend is memory; learner progress will not survive restarts")
	}

	// Practice
	if cfg.Practice.CaptureTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("practice.capture_timeout_ms %d is negative", cfg.Practice.CaptureTimeoutMs))
	}
	if cfg.Practice.AutoCloseMs < 0 {
		errs = append(errs, fmt.Errorf("practice.auto_close_ms %d is negative", cfg.Practice.AutoCloseMs))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
