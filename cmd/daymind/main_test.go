package main

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/daymind/internal/config"
	"github.com/MrWong99/daymind/pkg/audio"
	audiomock "github.com/MrWong99/daymind/pkg/audio/mock"
	"github.com/MrWong99/daymind/pkg/provider/stt"
	sttmock "github.com/MrWong99/daymind/pkg/provider/stt/mock"
)

func TestOptDuration(t *testing.T) {
	t.Parallel()
	opts := map[string]any{"timeout": "45s", "bad": "soon", "num": 3}
	if got := optDuration(opts, "timeout"); got != 45*time.Second {
		t.Errorf("timeout = %v", got)
	}
	for _, key := range []string{"bad", "num", "missing"} {
		if got := optDuration(opts, key); got != 0 {
			t.Errorf("%s = %v, want 0", key, got)
		}
	}
	if got := optDuration(nil, "timeout"); got != 0 {
		t.Errorf("nil map = %v", got)
	}
}

func mockRegistry() *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterTranscriber("daymind", func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{}, nil })
	reg.RegisterTranscriber("whisper", func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{}, nil })
	reg.RegisterAudio("portaudio", func(config.ProviderEntry, config.CaptureConfig) (audio.Source, error) {
		return &audiomock.Source{}, nil
	})
	return reg
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Providers.Fallbacks = []config.ProviderEntry{{Name: "whisper"}}

	ps, err := buildProviders(cfg, mockRegistry())
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if ps.Transcriber.Name != "daymind" || ps.Transcriber.Provider == nil {
		t.Errorf("transcriber = %+v", ps.Transcriber)
	}
	if len(ps.Fallbacks) != 1 || ps.Fallbacks[0].Name != "whisper" {
		t.Errorf("fallbacks = %+v", ps.Fallbacks)
	}
	if ps.VAD != nil {
		t.Error("unregistered vad should fall back to nil")
	}
	if ps.Audio == nil {
		t.Error("audio source missing")
	}
}

func TestBuildProviders_UnknownFallback(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Providers.Fallbacks = []config.ProviderEntry{{Name: "nope"}}

	_, err := buildProviders(cfg, mockRegistry())
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestShutdownBudget(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Capture.ChunkSeconds = 5
	cfg.Worker.UploadTimeout = 3 * time.Second
	if got := shutdownBudget(cfg); got != 15*time.Second {
		t.Errorf("short window and upload: budget = %v, want 15s", got)
	}

	cfg.Capture.ChunkSeconds = 30
	if got := shutdownBudget(cfg); got != 35*time.Second {
		t.Errorf("30 s window: budget = %v, want 35s", got)
	}

	cfg.Worker.UploadTimeout = 2 * time.Minute
	if got := shutdownBudget(cfg); got != 125*time.Second {
		t.Errorf("2m upload timeout: budget = %v, want 2m5s", got)
	}
}
