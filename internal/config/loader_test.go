package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/daymind/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "bad log level",
			yaml: "server:\n  log_level: loud\n",
			want: []string{"server.log_level"},
		},
		{
			name: "capture values",
			yaml: "capture:\n  sample_rate: 0\n  channels: 0\n  chunk_seconds: -1\n  output_dir: \"\"\n",
			want: []string{"capture.sample_rate", "capture.channels", "capture.chunk_seconds", "capture.output_dir"},
		},
		{
			name: "negative segmenter",
			yaml: "segmenter:\n  padding_ms: -5\n",
			want: []string{"segmenter.padding_ms"},
		},
		{
			name: "missing transcriber",
			yaml: "providers:\n  transcriber:\n    name: \"\"\n",
			want: []string{"providers.transcriber.name"},
		},
		{
			name: "unnamed fallback",
			yaml: "providers:\n  fallbacks:\n    - api_key: x\n",
			want: []string{"providers.fallbacks[0].name"},
		},
		{
			name: "bad backend",
			yaml: "transcripts:\n  backend: mongo\n",
			want: []string{"transcripts.backend"},
		},
		{
			name: "postgres without dsn",
			yaml: "transcripts:\n  backend: postgres\n",
			want: []string{"postgres_dsn"},
		},
		{
			name: "srt without path",
			yaml: "transcripts:\n  backend: srt\n  path: \"\"\n",
			want: []string{"transcripts.path"},
		},
		{
			name: "queue path",
			yaml: "queue:\n  path: \"\"\n",
			want: []string{"queue.path"},
		},
		{
			name: "negative worker duration",
			yaml: "worker:\n  idle_wait: -1s\n",
			want: []string{"worker durations"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error should mention %q, got: %v", w, err)
				}
			}
		})
	}
}

func TestValidate_OutOfRangeTunablesOnlyWarn(t *testing.T) {
	t.Parallel()
	yaml := "tunables:\n  vad_threshold: 99999\n  vad_aggressiveness: 7\n  noise_gate: 1.5\n"
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Errorf("tunables out of range should be clamped later, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	env := map[string]string{
		config.EnvAPIKey:      "secret",
		config.EnvServerURL:   "https://env.example",
		config.EnvPostgresDSN: "postgres://env/db",
		config.EnvLogLevel:    "warn",
	}
	config.ApplyEnv(cfg, func(k string) string { return env[k] })

	if cfg.Providers.Transcriber.APIKey != "secret" || cfg.Providers.Transcriber.BaseURL != "https://env.example" {
		t.Errorf("transcriber = %+v", cfg.Providers.Transcriber)
	}
	if cfg.Transcripts.PostgresDSN != "postgres://env/db" {
		t.Errorf("dsn = %q", cfg.Transcripts.PostgresDSN)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("log level = %q", cfg.Server.LogLevel)
	}
}

func TestApplyEnv_EmptyKeepsFileValues(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Providers.Transcriber.APIKey = "from-file"
	config.ApplyEnv(cfg, func(string) string { return "" })
	if cfg.Providers.Transcriber.APIKey != "from-file" {
		t.Errorf("api key overwritten: %q", cfg.Providers.Transcriber.APIKey)
	}
}

func TestLoad_UsesEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daymind.yaml")
	if err := os.WriteFile(path, []byte("transcripts:\n  backend: postgres\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvPostgresDSN, "postgres://from-env/db")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transcripts.PostgresDSN != "postgres://from-env/db" {
		t.Errorf("dsn = %q", cfg.Transcripts.PostgresDSN)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("DAYMIND_TEST_DOTENV=loaded\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DAYMIND_TEST_DOTENV", "")
	os.Unsetenv("DAYMIND_TEST_DOTENV")

	if err := config.LoadDotEnv(filepath.Join(dir, "missing.env"), envPath); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("DAYMIND_TEST_DOTENV"); got != "loaded" {
		t.Errorf("DAYMIND_TEST_DOTENV = %q, want loaded", got)
	}
}

func TestLoadDotEnv_NoFiles(t *testing.T) {
	t.Parallel()
	if err := config.LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Errorf("LoadDotEnv with missing files: %v", err)
	}
}
