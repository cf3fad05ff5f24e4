package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/daymind/internal/config"
	"github.com/MrWong99/daymind/pkg/audio"
	audiomock "github.com/MrWong99/daymind/pkg/audio/mock"
	"github.com/MrWong99/daymind/pkg/provider/stt"
	sttmock "github.com/MrWong99/daymind/pkg/provider/stt/mock"
	"github.com/MrWong99/daymind/pkg/provider/vad"
	vadmock "github.com/MrWong99/daymind/pkg/provider/vad/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9000"
  log_level: debug
  log_buffer_size: 50

capture:
  sample_rate: 48000
  channels: 2
  chunk_seconds: 10
  output_dir: /var/lib/daymind/chunks
  language: de
  device: USB Mic

tunables:
  vad_threshold: 2200
  vad_aggressiveness: 3
  noise_gate: 0.08

segmenter:
  min_speech_ms: 300
  padding_ms: 100

queue:
  path: /var/lib/daymind/queue.json

worker:
  idle_wait: 5s
  upload_timeout: 45s

providers:
  transcriber:
    name: daymind
    base_url: https://api.daymind.example
    api_key: dm-test
  fallbacks:
    - name: openai
      api_key: sk-test
      model: whisper-1
    - name: whisper
      base_url: http://localhost:8081
  vad:
    name: webrtc

transcripts:
  backend: badger
  path: /var/lib/daymind/transcripts

resilience:
  max_failures: 3
  reset_timeout: 1m

notify:
  desktop: true
`

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

// ── loading ──────────────────────────────────────────────────────────────────

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	if cfg.Server.ListenAddr != ":9000" || cfg.Server.LogLevel != config.LogDebug || cfg.Server.LogBufferSize != 50 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Capture.SampleRate != 48000 || cfg.Capture.Channels != 2 || cfg.Capture.Device != "USB Mic" {
		t.Errorf("capture = %+v", cfg.Capture)
	}
	if !cfg.Capture.AutoStart {
		t.Error("capture.auto_start default lost")
	}
	if cfg.Tunables != (config.TunablesConfig{VADThreshold: 2200, VADAggressiveness: 3, NoiseGate: 0.08}) {
		t.Errorf("tunables = %+v", cfg.Tunables)
	}
	if cfg.Segmenter.MinSpeechMs != 300 || cfg.Segmenter.MinGapMs != 250 || cfg.Segmenter.PaddingMs != 100 {
		t.Errorf("segmenter = %+v, want defaults kept for omitted fields", cfg.Segmenter)
	}
	if cfg.Worker.IdleWait != 5*time.Second || cfg.Worker.FailurePause != time.Second || cfg.Worker.UploadTimeout != 45*time.Second {
		t.Errorf("worker = %+v", cfg.Worker)
	}
	if len(cfg.Providers.Fallbacks) != 2 || cfg.Providers.Fallbacks[0].Model != "whisper-1" {
		t.Errorf("fallbacks = %+v", cfg.Providers.Fallbacks)
	}
	if cfg.Transcripts.Backend != config.BackendBadger {
		t.Errorf("backend = %q", cfg.Transcripts.Backend)
	}
	if cfg.Resilience.ResetTimeout != time.Minute {
		t.Errorf("reset_timeout = %v", cfg.Resilience.ResetTimeout)
	}
	if !cfg.Notify.Desktop {
		t.Error("notify.desktop = false")
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, "")
	want := config.Default()
	if cfg.Capture != want.Capture || cfg.Tunables != want.Tunables || cfg.Queue != want.Queue {
		t.Errorf("empty config = %+v, want defaults", cfg)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("capture:\n  sample_rat: 8000\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load("/nonexistent/daymind.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// ── registry ─────────────────────────────────────────────────────────────────

func TestRegistry_CreateTranscriber(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	want := &sttmock.Provider{}
	var got config.ProviderEntry
	reg.RegisterTranscriber("mock", func(e config.ProviderEntry) (stt.Provider, error) {
		got = e
		return want, nil
	})

	p, err := reg.CreateTranscriber(config.ProviderEntry{Name: "mock", APIKey: "k"})
	if err != nil {
		t.Fatalf("CreateTranscriber: %v", err)
	}
	if p != want || got.APIKey != "k" {
		t.Errorf("factory got %+v / returned %v", got, p)
	}
	if names := reg.TranscriberNames(); len(names) != 1 || names[0] != "mock" {
		t.Errorf("TranscriberNames = %v", names)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	_, err := reg.CreateTranscriber(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTranscriber err = %v", err)
	}
	_, err = reg.CreateVAD(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateVAD err = %v", err)
	}
	_, err = reg.CreateAudio(config.ProviderEntry{Name: "nope"}, config.CaptureConfig{})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateAudio err = %v", err)
	}
}

func TestRegistry_VADAndAudio(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterVAD("mock", func(config.ProviderEntry) (vad.Engine, error) { return &vadmock.Engine{}, nil })
	var rate int
	reg.RegisterAudio("mock", func(_ config.ProviderEntry, c config.CaptureConfig) (audio.Source, error) {
		rate = c.SampleRate
		return &audiomock.Source{SampleRate: c.SampleRate}, nil
	})

	if _, err := reg.CreateVAD(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateVAD: %v", err)
	}
	if _, err := reg.CreateAudio(config.ProviderEntry{Name: "mock"}, config.CaptureConfig{SampleRate: 8000}); err != nil {
		t.Errorf("CreateAudio: %v", err)
	}
	if rate != 8000 {
		t.Errorf("audio factory saw sample rate %d, want 8000", rate)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterTranscriber("bad", func(config.ProviderEntry) (stt.Provider, error) { return nil, boom })
	if _, err := reg.CreateTranscriber(config.ProviderEntry{Name: "bad"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestLogLevel_Level(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want string
	}{
		{config.LogDebug, "DEBUG"},
		{config.LogInfo, "INFO"},
		{config.LogWarn, "WARN"},
		{config.LogError, "ERROR"},
		{"", "INFO"},
	}
	for _, tt := range tests {
		if got := tt.in.Level().String(); got != tt.want {
			t.Errorf("LogLevel(%q).Level() = %s, want %s", tt.in, got, tt.want)
		}
	}
}
