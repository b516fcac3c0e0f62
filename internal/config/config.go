// Package config provides the configuration schema and loader for the
// Slovoday word-of-the-day server.
package config

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StorageBackend selects where learner progress records are persisted.
type StorageBackend string

const (
	// StorageMemory keeps records in process memory only. Progress is lost
	// on restart; intended for tests and demos.
	StorageMemory StorageBackend = "memory"

	// StorageFile persists records as JSON files in a directory.
	StorageFile StorageBackend = "file"

	// StorageSQLite persists records in a single-file SQLite database.
	StorageSQLite StorageBackend = "sqlite"
)

// IsValid reports whether b is a recognised storage backend.
func (b StorageBackend) IsValid() bool {
	switch b {
	case StorageMemory, StorageFile, StorageSQLite:
		return true
	}
	return false
}

// Config is the root configuration structure for Slovoday.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Storage    StorageConfig    `yaml:"storage"`
	Vocabulary VocabularyConfig `yaml:"vocabulary"`
	Practice   PracticeConfig   `yaml:"practice"`
}

// ServerConfig holds network and logging settings for the server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which device implementation to use for each
// practice capability. An empty Name leaves the capability unavailable;
// practice endpoints then report it as unsupported instead of failing.
type ProvidersConfig struct {
	Recognizer ProviderEntry `yaml:"recognizer"`
	Speech     ProviderEntry `yaml:"speech"`
}

// ProviderEntry is the common configuration block shared by both provider
// kinds.
type ProviderEntry struct {
	// Name selects the implementation (e.g., "whisper", "coqui").
	Name string `yaml:"name"`

	// BaseURL is the provider server's endpoint
	// (e.g., "http://localhost:8178").
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider, if it serves
	// several. Leave empty for the server's default.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// StorageConfig selects the durable backend for learner progress.
type StorageConfig struct {
	// Backend picks the persistence mechanism. Defaults to "sqlite".
	Backend StorageBackend `yaml:"backend"`

	// Path is the SQLite database file (backend "sqlite") or the record
	// directory (backend "file"). Ignored for "memory".
	Path string `yaml:"path"`
}

// VocabularyConfig selects the word catalogue.
type VocabularyConfig struct {
	// Path is a YAML word list to load instead of the embedded catalogue.
	// Leave empty to use the built-in words.
	Path string `yaml:"path"`
}

// PracticeConfig tunes the pronunciation and writing practice behaviour.
type PracticeConfig struct {
	// Language is the BCP-47 tag passed to the capture and speech devices.
	// Defaults to "ru-RU".
	Language string `yaml:"language"`

	// CaptureTimeoutMs bounds how long a capture may listen before it is
	// stopped automatically. Defaults to 5000.
	CaptureTimeoutMs int `yaml:"capture_timeout_ms"`

	// AutoCloseMs is how long a successful practice result stays open before
	// the session closes itself. Defaults to 3000.
	AutoCloseMs int `yaml:"auto_close_ms"`

	// ReviewLog is a JSON-lines file recording every evaluated attempt, for
	// reviewing practice history. Empty disables the log.
	ReviewLog string `yaml:"review_log"`
}
