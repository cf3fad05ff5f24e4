// Package capture runs the sampling loop that turns microphone input into
// speech-only chunk files.
//
// Each iteration records one fixed-length window from an [audio.Source],
// conditions it with an [audio.NoiseReducer], discards it when its peak stays
// below the noise gate, trims it to speech with a [segment.Segmenter] and, if
// any speech survives, writes the trimmed audio as a FLAC file and hands a
// [Chunk] to the configured callback. A failing device yields a silent window
// so the loop keeps running.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/daymind/internal/observe"
	"github.com/MrWong99/daymind/pkg/audio"
	"github.com/MrWong99/daymind/pkg/audio/flac"
	"github.com/MrWong99/daymind/pkg/audio/segment"
)

const (
	defaultSampleRate   = 16000
	defaultChunkSeconds = 30
	defaultPause        = 100 * time.Millisecond
)

// Conditioner transforms a captured window before gating. [audio.NoiseReducer]
// is the production implementation.
type Conditioner interface {
	Apply(audio.Buffer) audio.Buffer
}

// Chunk is one recorded window that contained speech.
type Chunk struct {
	// Path of the FLAC file holding the trimmed speech audio.
	Path string

	// SessionStart and SessionEnd bound the full captured window, silence
	// included, in UTC.
	SessionStart time.Time
	SessionEnd   time.Time

	// Segments are the speech spans relative to SessionStart.
	Segments []segment.Segment
}

// Config configures a [Capture]. Source, Segmenter and OutputDir are required.
type Config struct {
	Source    audio.Source
	Segmenter *segment.Segmenter

	// Reducer conditions every window. Default: a NoiseReducer with default
	// options at SampleRate.
	Reducer Conditioner

	// Tunables are read at the start of every window. Default: DefaultTunables.
	Tunables *Tunables

	// SampleRate of the source in Hz. Default: 16000.
	SampleRate int

	// ChunkSeconds is the window length. Default: 30.
	ChunkSeconds int

	// OutputDir receives the chunk files.
	OutputDir string

	// OnChunk is called synchronously for every recorded chunk.
	OnChunk func(context.Context, Chunk)

	// Pause is slept between windows. Default: 100ms.
	Pause time.Duration

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Now is the clock used for session timestamps. Default: time.Now.
	Now func() time.Time
}

// Capture owns the sampling loop. Start, Stop and the accessors are safe for
// concurrent use.
type Capture struct {
	source       audio.Source
	segmenter    *segment.Segmenter
	reducer      Conditioner
	tunables     *Tunables
	sampleRate   int
	chunkSeconds int
	outputDir    string
	onChunk      func(context.Context, Chunk)
	pause        time.Duration
	metrics      *observe.Metrics
	now          func() time.Time

	level atomic.Uint64

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// New creates a Capture. It does not start recording.
func New(cfg Config) (*Capture, error) {
	var errs []error
	if cfg.Source == nil {
		errs = append(errs, errors.New("source is required"))
	}
	if cfg.Segmenter == nil {
		errs = append(errs, errors.New("segmenter is required"))
	}
	if cfg.OutputDir == "" {
		errs = append(errs, errors.New("output dir is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}

	c := &Capture{
		source:       cfg.Source,
		segmenter:    cfg.Segmenter,
		reducer:      cfg.Reducer,
		tunables:     cfg.Tunables,
		sampleRate:   cfg.SampleRate,
		chunkSeconds: cfg.ChunkSeconds,
		outputDir:    cfg.OutputDir,
		onChunk:      cfg.OnChunk,
		pause:        cfg.Pause,
		metrics:      cfg.Metrics,
		now:          cfg.Now,
	}
	if c.sampleRate <= 0 {
		c.sampleRate = defaultSampleRate
	}
	if c.chunkSeconds <= 0 {
		c.chunkSeconds = defaultChunkSeconds
	}
	if c.reducer == nil {
		c.reducer = audio.NewNoiseReducer(c.sampleRate)
	}
	if c.tunables == nil {
		c.tunables = NewTunables(DefaultTunables())
	}
	if c.pause == 0 {
		c.pause = defaultPause
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Tunables returns the live parameters read by the loop.
func (c *Capture) Tunables() *Tunables { return c.tunables }

// Level returns the normalised peak (0–1) of the last conditioned window.
func (c *Capture) Level() float64 { return math.Float64frombits(c.level.Load()) }

// Running reports whether the loop is active.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

// Start launches the loop. Calling Start while running is a no-op. The loop
// ends when ctx is cancelled or [Capture.Stop] is called.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return nil
	}
	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return fmt.Errorf("capture: create output dir: %w", err)
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(ctx, c.stop, c.done)
	slog.Info("recording started")
	return nil
}

// Stop ends the loop after the window in progress and waits for it. Safe to
// call when stopped.
func (c *Capture) Stop() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	slog.Info("recording stopped")
}

func (c *Capture) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}

		chunk, err := c.RecordWindow(ctx)
		switch {
		case err != nil:
			if ctx.Err() == nil {
				slog.Error("capture window failed", "err", err)
			}
		case chunk != nil && c.onChunk != nil:
			c.onChunk(ctx, *chunk)
		}

		pause := time.NewTimer(c.pause)
		select {
		case <-ctx.Done():
		case <-stop:
		case <-pause.C:
		}
		pause.Stop()
	}
}

// RecordWindow captures and processes a single window. It returns a nil
// Chunk when the window was gated or held no speech. The only error is a
// failure to write the chunk file.
func (c *Capture) RecordWindow(ctx context.Context) (*Chunk, error) {
	ctx, span := observe.StartSpan(ctx, "capture.window")
	chunk, outcome, err := c.recordWindow(ctx)
	span.SetAttributes(attribute.String("capture.outcome", outcome))
	observe.EndSpan(span, err)
	if outcome != "" {
		c.metrics.RecordCaptureWindow(ctx, outcome)
	}
	return chunk, err
}

func (c *Capture) recordWindow(ctx context.Context) (*Chunk, string, error) {
	tv := c.tunables.Snapshot()
	c.segmenter.SetAmplitudeThreshold(tv.VADThreshold)
	if err := c.segmenter.SetAggressiveness(tv.VADAggressiveness); err != nil {
		slog.Warn("capture: apply vad aggressiveness", "value", tv.VADAggressiveness, "err", err)
	}

	start := c.now().UTC()
	frames := c.sampleRate * c.chunkSeconds
	deviceFailed := false

	// A window that has started is recorded in full; stop and cancellation
	// take effect between windows.
	buf, err := c.source.Read(context.WithoutCancel(ctx), frames)
	if err != nil {
		slog.Warn("capture device error, substituting silence", "err", err)
		buf = audio.Silence(frames, c.sampleRate)
		deviceFailed = true
	}
	buf = buf.Mono()
	duration := buf.Duration()

	buf = c.reducer.Apply(buf)
	level := buf.Level()
	c.level.Store(math.Float64bits(level))
	c.metrics.CaptureLevel.Record(ctx, level)
	trace.SpanFromContext(ctx).SetAttributes(attribute.Float64("capture.level", level))

	outcome := func(o string) string {
		if deviceFailed {
			return observe.OutcomeDeviceError
		}
		return o
	}

	if len(buf.Samples) == 0 || level < tv.NoiseGate {
		slog.Info("ambient noise below gate; chunk skipped", "level", round(level), "gate", tv.NoiseGate)
		return nil, outcome(observe.OutcomeGated), nil
	}

	segStart := time.Now()
	trimmed, segments := c.segmenter.Process(buf)
	c.metrics.SegmenterDuration.Record(ctx, time.Since(segStart).Seconds())
	if len(segments) == 0 || len(trimmed.Samples) == 0 {
		slog.Info("no speech detected; chunk discarded")
		return nil, outcome(observe.OutcomeNoSpeech), nil
	}

	path := filepath.Join(c.outputDir, fmt.Sprintf("chunk_%d%s", start.UnixMilli(), flac.Extension))
	if err := flac.WriteFile(path, trimmed); err != nil {
		return nil, outcome(observe.OutcomeNoSpeech), fmt.Errorf("capture: write chunk: %w", err)
	}
	slog.Info("chunk recorded", "file", filepath.Base(path), "segments", len(segments), "speech", trimmed.Duration().Round(time.Millisecond))

	return &Chunk{
		Path:         path,
		SessionStart: start,
		SessionEnd:   start.Add(duration),
		Segments:     segments,
	}, outcome(observe.OutcomeKept), nil
}

func round(v float64) float64 { return math.Round(v*1000) / 1000 }
