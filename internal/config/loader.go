package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"transcriber": {"daymind", "openai", "whisper"},
	"vad":         {"webrtc"},
	"audio":       {"portaudio"},
}

// Environment variables that override secrets from the file.
const (
	EnvAPIKey      = "DAYMIND_API_KEY"
	EnvServerURL   = "DAYMIND_SERVER_URL"
	EnvPostgresDSN = "DAYMIND_POSTGRES_DSN"
	EnvLogLevel    = "DAYMIND_LOG_LEVEL"
)

// Load reads the YAML configuration file at path, applies environment
// overrides and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	ApplyEnv(cfg, os.Getenv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over [Default] and validates
// the result. It does not read the environment.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("config: load env files: %w", err)
	}
	return nil
}

// ApplyEnv overrides secrets and the log level with DAYMIND_* variables read
// through getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvAPIKey); v != "" {
		cfg.Providers.Transcriber.APIKey = v
	}
	if v := getenv(EnvServerURL); v != "" {
		cfg.Providers.Transcriber.BaseURL = v
	}
	if v := getenv(EnvPostgresDSN); v != "" {
		cfg.Transcripts.PostgresDSN = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.Server.LogLevel = LogLevel(v)
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
	if cfg.Server.LogBufferSize < 0 {
		errs = append(errs, fmt.Errorf("server.log_buffer_size %d must not be negative", cfg.Server.LogBufferSize))
	}

	// Capture
	if cfg.Capture.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must be positive", cfg.Capture.SampleRate))
	}
	if cfg.Capture.Channels <= 0 {
		errs = append(errs, fmt.Errorf("capture.channels %d must be positive", cfg.Capture.Channels))
	}
	if cfg.Capture.ChunkSeconds <= 0 {
		errs = append(errs, fmt.Errorf("capture.chunk_seconds %d must be positive", cfg.Capture.ChunkSeconds))
	}
	if cfg.Capture.OutputDir == "" {
		errs = append(errs, errors.New("capture.output_dir is required"))
	}

	// Tunables are clamped at runtime; only warn.
	t := cfg.Tunables
	if t.VADThreshold < 0 || t.VADThreshold > 32767 {
		slog.Warn("tunables.vad_threshold out of range, will be clamped", "value", t.VADThreshold)
	}
	if t.VADAggressiveness < 0 || t.VADAggressiveness > 3 {
		slog.Warn("tunables.vad_aggressiveness out of range, will be clamped", "value", t.VADAggressiveness)
	}
	if t.NoiseGate < 0 || t.NoiseGate > 1 {
		slog.Warn("tunables.noise_gate out of range, will be clamped", "value", t.NoiseGate)
	}

	// Segmenter
	s := cfg.Segmenter
	for name, v := range map[string]int{
		"segmenter.min_speech_ms": s.MinSpeechMs,
		"segmenter.min_gap_ms":    s.MinGapMs,
		"segmenter.padding_ms":    s.PaddingMs,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s %d must not be negative", name, v))
		}
	}
	if s.FrameMs <= 0 {
		slog.Warn("segmenter.frame_ms is not positive; the frame classifier will never report speech", "value", s.FrameMs)
	}

	// Noise
	if cfg.Noise.CutoffHz < 0 {
		errs = append(errs, fmt.Errorf("noise.cutoff_hz %.1f must not be negative", cfg.Noise.CutoffHz))
	}

	// Queue
	if cfg.Queue.Path == "" {
		errs = append(errs, errors.New("queue.path is required"))
	}

	// Worker
	if cfg.Worker.IdleWait < 0 || cfg.Worker.FailurePause < 0 || cfg.Worker.UploadTimeout < 0 {
		errs = append(errs, errors.New("worker durations must not be negative"))
	}

	// Providers
	if cfg.Providers.Transcriber.Name == "" {
		errs = append(errs, errors.New("providers.transcriber.name is required"))
	}
	validateProviderName("transcriber", cfg.Providers.Transcriber.Name)
	for i, fb := range cfg.Providers.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("transcriber", fb.Name)
	}
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)

	// Transcripts
	switch b := cfg.Transcripts.Backend; {
	case b == "":
	case !b.IsValid():
		errs = append(errs, fmt.Errorf("transcripts.backend %q is invalid; valid values: none, srt, postgres, badger", b))
	case b == BackendPostgres && cfg.Transcripts.PostgresDSN == "":
		errs = append(errs, errors.New("transcripts.postgres_dsn is required for the postgres backend"))
	case (b == BackendSRT || b == BackendBadger) && cfg.Transcripts.Path == "":
		errs = append(errs, fmt.Errorf("transcripts.path is required for the %s backend", b))
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
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
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
