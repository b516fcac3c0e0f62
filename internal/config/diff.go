package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider, storage,
// and server-address changes require a restart and are reported so the caller
// can say so in its logs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	PracticeChanged bool
	NewPractice     PracticeConfig

	// RestartRequired is true when a field that cannot be hot-reloaded
	// (listen address, providers, storage, vocabulary path) changed.
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Practice != new.Practice {
		d.PracticeChanged = true
		d.NewPractice = new.Practice
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Providers.Recognizer.Name != new.Providers.Recognizer.Name ||
		old.Providers.Recognizer.BaseURL != new.Providers.Recognizer.BaseURL ||
		old.Providers.Speech.Name != new.Providers.Speech.Name ||
		old.Providers.Speech.BaseURL != new.Providers.Speech.BaseURL ||
		old.Storage != new.Storage ||
		old.Vocabulary != new.Vocabulary {
		d.RestartRequired = true
	}

	return d
}
