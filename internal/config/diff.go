package config

import "fmt"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// needs a restart.
type ConfigDiff struct {
	TunablesChanged bool
	NewTunables     TunablesConfig

	LogLevelChanged bool
	NewLogLevel     LogLevel

	NotifyChanged bool
	NewNotify     NotifyConfig

	// RestartRequired lists sections that changed but are only read at
	// startup.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Tunables != new.Tunables {
		d.TunablesChanged = true
		d.NewTunables = new.Tunables
	}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Notify != new.Notify {
		d.NotifyChanged = true
		d.NewNotify = new.Notify
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.LogBufferSize != new.Server.LogBufferSize {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Capture != new.Capture {
		d.RestartRequired = append(d.RestartRequired, "capture")
	}
	if old.Segmenter != new.Segmenter {
		d.RestartRequired = append(d.RestartRequired, "segmenter")
	}
	if old.Noise != new.Noise {
		d.RestartRequired = append(d.RestartRequired, "noise")
	}
	if old.Queue != new.Queue {
		d.RestartRequired = append(d.RestartRequired, "queue")
	}
	if old.Worker != new.Worker {
		d.RestartRequired = append(d.RestartRequired, "worker")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Transcripts != new.Transcripts {
		d.RestartRequired = append(d.RestartRequired, "transcripts")
	}
	if old.Resilience != new.Resilience {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}

	return d
}

func providersEqual(a, b ProvidersConfig) bool {
	if len(a.Fallbacks) != len(b.Fallbacks) {
		return false
	}
	if !entryEqual(a.Transcriber, b.Transcriber) || !entryEqual(a.VAD, b.VAD) || !entryEqual(a.Audio, b.Audio) {
		return false
	}
	for i := range a.Fallbacks {
		if !entryEqual(a.Fallbacks[i], b.Fallbacks[i]) {
			return false
		}
	}
	return true
}

// entryEqual compares the scalar fields of two entries and the string form of
// their options.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		w, ok := b.Options[k]
		if !ok || fmt.Sprint(v) != fmt.Sprint(w) {
			return false
		}
	}
	return true
}
