// Package app wires the DayMind subsystems into a running recorder.
//
// New builds the pipeline (capture, queue, upload worker, transcript archive,
// operator surface) from a validated config and a set of providers. Run
// starts the loops and blocks until the context ends; Shutdown tears
// everything down in order.
//
// Tests inject doubles through the functional options (WithConditioner,
// WithTranscriptStore, ...). Anything not injected is built from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/daymind/internal/capture"
	"github.com/MrWong99/daymind/internal/config"
	"github.com/MrWong99/daymind/internal/health"
	"github.com/MrWong99/daymind/internal/notify"
	"github.com/MrWong99/daymind/internal/observe"
	"github.com/MrWong99/daymind/internal/operator"
	"github.com/MrWong99/daymind/internal/oplog"
	"github.com/MrWong99/daymind/internal/queue"
	"github.com/MrWong99/daymind/internal/resilience"
	"github.com/MrWong99/daymind/internal/transcript"
	transcriptbadger "github.com/MrWong99/daymind/internal/transcript/badger"
	transcriptpg "github.com/MrWong99/daymind/internal/transcript/postgres"
	"github.com/MrWong99/daymind/internal/transcript/srt"
	"github.com/MrWong99/daymind/internal/upload"
	"github.com/MrWong99/daymind/pkg/audio"
	"github.com/MrWong99/daymind/pkg/audio/segment"
	"github.com/MrWong99/daymind/pkg/provider/stt"
	"github.com/MrWong99/daymind/pkg/provider/vad"
)

// serverShutdownTimeout bounds the operator server's graceful shutdown.
const serverShutdownTimeout = 5 * time.Second

// NamedTranscriber is a transcription backend with its config name.
type NamedTranscriber struct {
	Name     string
	Provider stt.Provider
}

// Providers holds the instantiated backends. Transcriber and Audio are
// required; a nil VAD selects the amplitude threshold strategy.
type Providers struct {
	Transcriber NamedTranscriber
	Fallbacks   []NamedTranscriber
	VAD         vad.Engine
	Audio       audio.Source
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics     *observe.Metrics
	log         *oplog.Buffer
	levelVar    *slog.LevelVar
	configPath  string
	conditioner capture.Conditioner

	remote      *resilience.TranscriberFallback
	queue       *queue.Queue
	transcripts transcript.Store
	desktop     *notify.Notifier
	notifier    upload.Notifier
	segmenter   *segment.Segmenter
	capture     *capture.Capture
	worker      *upload.Worker
	server      *operator.Server
	watcher     *config.Watcher

	// runCtx is the Run context; operator-initiated capture starts use it.
	runMu  sync.Mutex
	runCtx context.Context

	ownsTranscripts bool
	stopOnce        sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics sets the metrics instruments. Default: observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithOpLog shares the operator log buffer fed by the process logger.
func WithOpLog(b *oplog.Buffer) Option {
	return func(a *App) { a.log = b }
}

// WithLevelVar lets configuration reloads change the process log level.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// WithConfigPath enables live reload of the config file at path.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithConditioner replaces the noise reducer built from the config.
func WithConditioner(c capture.Conditioner) Option {
	return func(a *App) { a.conditioner = c }
}

// WithTranscriptStore injects a transcript store instead of opening the
// configured backend.
func WithTranscriptStore(s transcript.Store) Option {
	return func(a *App) { a.transcripts = s }
}

// WithNotifier replaces the desktop notifier.
func WithNotifier(n upload.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New builds every subsystem synchronously. Nothing runs until [App.Run].
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Transcriber.Provider == nil {
		return nil, errors.New("app: a transcriber is required")
	}
	if providers.Audio == nil {
		return nil, errors.New("app: an audio source is required")
	}

	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.log == nil {
		a.log = oplog.New(cfg.Server.LogBufferSize)
	}

	a.initRemote()

	// Built in dependency order; a failure releases what was already built.
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"queue", a.initQueue},
		{"transcripts", a.initTranscripts},
		{"worker", a.initWorker},
		{"capture", a.initCapture},
		{"operator", a.initOperator},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.runClosers()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initRemote() {
	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  a.cfg.Resilience.MaxFailures,
			ResetTimeout: a.cfg.Resilience.ResetTimeout,
		},
	}
	primary := a.providers.Transcriber
	a.remote = resilience.NewTranscriberFallback(primary.Provider, primary.Name, fbCfg)
	for _, fb := range a.providers.Fallbacks {
		a.remote.AddFallback(fb.Name, fb.Provider)
	}
}

func (a *App) initQueue(context.Context) error {
	q, err := queue.Open(a.cfg.Queue.Path, queue.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.queue = q
	if n := q.Len(); n > 0 {
		slog.Info("resuming queued chunks", "count", n)
	}
	return nil
}

func (a *App) initTranscripts(ctx context.Context) error {
	if a.transcripts != nil {
		return nil
	}
	tc := a.cfg.Transcripts
	switch tc.Backend {
	case config.BackendNone, "":
		return nil
	case config.BackendSRT:
		s, err := srt.Open(tc.Path)
		if err != nil {
			return err
		}
		a.transcripts = s
	case config.BackendPostgres:
		s, err := transcriptpg.NewStore(ctx, tc.PostgresDSN)
		if err != nil {
			return err
		}
		a.transcripts = s
	case config.BackendBadger:
		s, err := transcriptbadger.Open(tc.Path)
		if err != nil {
			return err
		}
		a.transcripts = s
	default:
		return fmt.Errorf("unknown transcript backend %q", tc.Backend)
	}
	a.ownsTranscripts = true
	slog.Info("transcript archive ready", "backend", tc.Backend)
	return nil
}

func (a *App) initWorker(context.Context) error {
	if a.notifier == nil {
		a.desktop = notify.New(a.cfg.Notify.Desktop)
		a.notifier = a.desktop
	}
	w, err := upload.New(upload.Config{
		Queue:         a.queue,
		Provider:      a.remote,
		ProviderName:  a.providers.Transcriber.Name,
		Transcripts:   a.transcripts,
		Notifier:      a.notifier,
		Metrics:       a.metrics,
		IdleWait:      a.cfg.Worker.IdleWait,
		FailurePause:  a.cfg.Worker.FailurePause,
		UploadTimeout: a.cfg.Worker.UploadTimeout,
	})
	if err != nil {
		return err
	}
	a.worker = w
	return nil
}

func (a *App) initCapture(context.Context) error {
	cc := a.cfg.Capture
	sc := a.cfg.Segmenter
	segOpts := []segment.Option{
		segment.WithAggressiveness(a.cfg.Tunables.VADAggressiveness),
		segment.WithAmplitudeThreshold(a.cfg.Tunables.VADThreshold),
		segment.WithMinSpeech(sc.MinSpeechMs),
		segment.WithMinGap(sc.MinGapMs),
		segment.WithPadding(sc.PaddingMs),
		segment.WithFrameMs(sc.FrameMs),
	}
	if a.providers.VAD != nil {
		segOpts = append(segOpts, segment.WithEngine(a.providers.VAD))
	}
	a.segmenter = segment.New(cc.SampleRate, segOpts...)
	slog.Info("speech segmenter ready", "strategy", a.segmenter.Strategy().Name())

	cond := a.conditioner
	if cond == nil {
		cond = audio.NewNoiseReducer(cc.SampleRate,
			audio.WithCutoff(a.cfg.Noise.CutoffHz),
			audio.WithSmoothing(a.cfg.Noise.Smoothing))
	}

	c, err := capture.New(capture.Config{
		Source:    a.providers.Audio,
		Segmenter: a.segmenter,
		Reducer:   cond,
		Tunables: capture.NewTunables(capture.TunableValues{
			VADThreshold:      a.cfg.Tunables.VADThreshold,
			VADAggressiveness: a.cfg.Tunables.VADAggressiveness,
			NoiseGate:         a.cfg.Tunables.NoiseGate,
		}),
		SampleRate:   cc.SampleRate,
		ChunkSeconds: cc.ChunkSeconds,
		OutputDir:    cc.OutputDir,
		OnChunk:      capture.Enqueuer(a.queue, cc.Language, a.worker.Wake),
		Metrics:      a.metrics,
	})
	if err != nil {
		return err
	}
	a.capture = c
	return nil
}

func (a *App) initOperator(context.Context) error {
	checkers := []health.Checker{
		health.DirWritable("queue_store", filepath.Dir(a.cfg.Queue.Path)),
		health.RemoteReachable("remote", a.remote),
	}
	reader, _ := a.transcripts.(transcript.Reader)
	srv, err := operator.New(operator.Config{
		Recorder:      a.capture,
		Queue:         a.queue,
		Remote:        a.remote,
		Wake:          a.worker.Wake,
		StartCapture:  a.startCapture,
		StopCapture:   a.capture.Stop,
		WorkerRunning: a.worker.Running,
		Breakers:      a.remote.Status,
		Transcripts:   reader,
		Log:           a.log,
		Health:        health.New(checkers...),
		Metrics:       a.metrics,
	})
	if err != nil {
		return err
	}
	a.server = srv
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts capture (when auto_start is set), the upload worker, the
// operator server and the config watcher, then blocks until ctx is cancelled
// or the operator server fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.runMu.Lock()
	a.runCtx = gctx
	a.runMu.Unlock()

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.applyConfig)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.watcher = w
	}

	a.worker.Start(gctx)
	if a.cfg.Capture.AutoStart {
		if err := a.capture.Start(gctx); err != nil {
			return fmt.Errorf("app: %w", err)
		}
	}

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		g.Go(func() error {
			return a.server.ListenAndServe(gctx, addr, serverShutdownTimeout)
		})
	}

	slog.Info("daymind running",
		"transcriber", a.providers.Transcriber.Name,
		"fallbacks", len(a.providers.Fallbacks),
		"queued", a.queue.Len())

	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})
	return g.Wait()
}

// startCapture restarts recording under the Run context.
func (a *App) startCapture() error {
	a.runMu.Lock()
	ctx := a.runCtx
	a.runMu.Unlock()
	if ctx == nil {
		return errors.New("app: not running")
	}
	return a.capture.Start(ctx)
}

// applyConfig is the watcher callback. Tunables, log level and notification
// settings apply immediately; every other change is reported.
func (a *App) applyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.TunablesChanged {
		a.capture.Tunables().Set(capture.TunableValues{
			VADThreshold:      d.NewTunables.VADThreshold,
			VADAggressiveness: d.NewTunables.VADAggressiveness,
			NoiseGate:         d.NewTunables.NoiseGate,
		})
		slog.Info("tunables reloaded",
			"vad_threshold", d.NewTunables.VADThreshold,
			"vad_aggressiveness", d.NewTunables.VADAggressiveness,
			"noise_gate", d.NewTunables.NoiseGate)
	}
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.NotifyChanged && a.desktop != nil {
		a.desktop.SetEnabled(d.NewNotify.Desktop)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("configuration change requires a restart", "sections", d.RestartRequired)
	}
}

// Handler returns the operator HTTP handler.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Tunables returns the live capture parameters.
func (a *App) Tunables() *capture.Tunables { return a.capture.Tunables() }

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops capture, then the worker, then releases stores and devices.
// If ctx expires first, Shutdown returns the context error and the release
// continues in the background.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")
		done := make(chan struct{})
		go func() {
			defer close(done)
			a.runClosers()
		}()
		select {
		case <-done:
			slog.Info("shutdown complete")
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded")
			shutdownErr = ctx.Err()
		}
	})
	return shutdownErr
}

// closers returns the release steps for whatever has been built. Capture
// stops before the worker so its last chunk is queued, and the worker stops
// before the transcript store closes.
func (a *App) closers() []namedCloser {
	var cs []namedCloser
	if a.watcher != nil {
		cs = append(cs, namedCloser{"watcher", func() error { a.watcher.Stop(); return nil }})
	}
	if a.capture != nil {
		cs = append(cs, namedCloser{"capture", func() error { a.capture.Stop(); return nil }})
	}
	if a.worker != nil {
		cs = append(cs, namedCloser{"worker", func() error { a.worker.Stop(); return nil }})
	}
	if a.segmenter != nil {
		cs = append(cs, namedCloser{"segmenter", a.segmenter.Close})
	}
	cs = append(cs, namedCloser{"audio", a.providers.Audio.Close})
	if a.transcripts != nil && a.ownsTranscripts {
		cs = append(cs, namedCloser{"transcripts", a.transcripts.Close})
	}
	return cs
}

type namedCloser struct {
	name  string
	close func() error
}

func (a *App) runClosers() {
	for _, c := range a.closers() {
		if err := c.close(); err != nil {
			slog.Warn("closer error", "component", c.name, "err", err)
		}
	}
}
