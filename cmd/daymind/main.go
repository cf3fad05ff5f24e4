// Command daymind is the DayMind capture agent: it records speech from the
// microphone, queues it as FLAC chunks and delivers them to a transcription
// backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/daymind/internal/app"
	"github.com/MrWong99/daymind/internal/config"
	"github.com/MrWong99/daymind/internal/observe"
	"github.com/MrWong99/daymind/internal/oplog"
	"github.com/MrWong99/daymind/pkg/audio"
	"github.com/MrWong99/daymind/pkg/audio/portaudio"
	"github.com/MrWong99/daymind/pkg/provider/stt"
	"github.com/MrWong99/daymind/pkg/provider/stt/daymind"
	oastt "github.com/MrWong99/daymind/pkg/provider/stt/openai"
	"github.com/MrWong99/daymind/pkg/provider/stt/whisper"
	"github.com/MrWong99/daymind/pkg/provider/vad"
	"github.com/MrWong99/daymind/pkg/provider/vad/webrtc"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "daymind.yaml", "path to the YAML configuration file")
	envFile := flag.String("env", ".env", "optional dotenv file with DAYMIND_* overrides")
	watch := flag.Bool("watch", true, "reload tunables and log level when the config file changes")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "daymind: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "daymind: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "daymind: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Level())
	opLog := oplog.New(cfg.Server.LogBufferSize)
	slog.SetDefault(newLogger(&level, opLog))

	slog.Info("daymind starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	host, _ := os.Hostname()
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		InstanceID:     host,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	opts := []app.Option{
		app.WithOpLog(opLog),
		app.WithLevelVar(&level),
		app.WithMetrics(observe.DefaultMetrics()),
	}
	if *watch {
		opts = append(opts, app.WithConfigPath(*configPath))
	}
	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("recorder ready; press Ctrl+C to stop")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownBudget(cfg))
	defer cancel()

	slog.Info("stopping")
	code := 0
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		code = 1
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires every shipped implementation into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Transcribers ──────────────────────────────────────────────────────────

	reg.RegisterTranscriber("daymind", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []daymind.Option
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, daymind.WithTimeout(d))
		}
		return daymind.New(entry.BaseURL, entry.APIKey, opts...), nil
	})

	reg.RegisterTranscriber("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oastt.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oastt.WithTimeout(d))
		}
		return oastt.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTranscriber("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if t, ok := entry.Options["temperature"].(float64); ok {
			opts = append(opts, whisper.WithTemperature(t))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("webrtc", func(config.ProviderEntry) (vad.Engine, error) {
		return webrtc.New(), nil
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(_ config.ProviderEntry, cc config.CaptureConfig) (audio.Source, error) {
		device := cc.Device
		if strings.EqualFold(device, "auto") {
			device = ""
		}
		return portaudio.New(cc.SampleRate,
			portaudio.WithDevice(device),
			portaudio.WithChannels(cc.Channels))
	})

	for _, name := range reg.TranscriberNames() {
		slog.Debug("registered provider", "kind", "transcriber", "name", name)
	}
}

// buildProviders instantiates the providers named in cfg.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	p, err := reg.CreateTranscriber(cfg.Providers.Transcriber)
	if err != nil {
		return nil, fmt.Errorf("create transcriber %q: %w", cfg.Providers.Transcriber.Name, err)
	}
	ps.Transcriber = app.NamedTranscriber{Name: cfg.Providers.Transcriber.Name, Provider: p}
	slog.Info("provider created", "kind", "transcriber", "name", cfg.Providers.Transcriber.Name)

	for i, entry := range cfg.Providers.Fallbacks {
		fp, err := reg.CreateTranscriber(entry)
		if err != nil {
			return nil, fmt.Errorf("create fallback %d (%q): %w", i, entry.Name, err)
		}
		ps.Fallbacks = append(ps.Fallbacks, app.NamedTranscriber{Name: entry.Name, Provider: fp})
		slog.Info("provider created", "kind", "fallback", "name", entry.Name)
	}

	if name := cfg.Providers.VAD.Name; name != "" {
		v, err := reg.CreateVAD(cfg.Providers.VAD)
		switch {
		case errors.Is(err, config.ErrProviderNotRegistered):
			slog.Warn("vad provider not available; using amplitude threshold", "name", name)
		case err != nil:
			return nil, fmt.Errorf("create vad %q: %w", name, err)
		default:
			ps.VAD = v
		}
	}

	src, err := reg.CreateAudio(cfg.Providers.Audio, cfg.Capture)
	if err != nil {
		return nil, fmt.Errorf("create audio source %q: %w", cfg.Providers.Audio.Name, err)
	}
	ps.Audio = src
	return ps, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger writes text logs to stderr at the level held by lvl and copies
// Info and above into the operator log.
func newLogger(lvl *slog.LevelVar, opLog *oplog.Buffer) *slog.Logger {
	text := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(oplog.NewHandler(text, opLog))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optDuration parses a Go duration string from a provider Options map.
// Missing or malformed values yield 0.
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}

// shutdownBudget is the graceful shutdown deadline: at least 15 s, and long
// enough for an in-progress capture window or upload attempt to finish.
func shutdownBudget(cfg *config.Config) time.Duration {
	window := time.Duration(cfg.Capture.ChunkSeconds) * time.Second
	return max(15*time.Second, max(window, cfg.Worker.UploadTimeout)+5*time.Second)
}
