// Package upload drains the chunk queue against a remote transcription
// backend.
//
// A [Worker] runs one background loop: it takes the oldest ready entry from
// the queue, uploads the chunk file and either removes the entry and its file
// (success) or records the failure so the queue schedules a backoff retry.
// Successful transcripts are archived in a [transcript.Store] on a
// best-effort basis. Delivery is at-least-once.
package upload

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/daymind/internal/observe"
	"github.com/MrWong99/daymind/internal/queue"
	"github.com/MrWong99/daymind/internal/transcript"
	"github.com/MrWong99/daymind/pkg/provider/stt"
)

const (
	defaultIdleWait      = 2 * time.Second
	defaultFailurePause  = time.Second
	defaultUploadTimeout = 2 * time.Minute
)

// Notifier is told about delivery outcomes. Implementations must not block.
type Notifier interface {
	Delivered(chunkID, text string)
	Failed(chunkID string, err error)
}

// Config configures a [Worker]. Queue and Provider are required.
type Config struct {
	Queue    *queue.Queue
	Provider stt.Provider

	// ProviderName labels metrics and logs. Defaults to "transcriber".
	ProviderName string

	// Transcripts receives the text of delivered chunks. Optional.
	Transcripts transcript.Store

	// Notifier is told about deliveries and failures. Optional.
	Notifier Notifier

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// IdleWait bounds how long the loop sleeps on an empty queue before it
	// checks again. Default: 2s.
	IdleWait time.Duration

	// FailurePause is slept after every failed attempt, on top of the
	// queue's own backoff. Default: 1s.
	FailurePause time.Duration

	// UploadTimeout bounds a single attempt. Default: 2m.
	UploadTimeout time.Duration
}

// Worker is the background delivery loop. Start, Stop and Wake are safe for
// concurrent use.
type Worker struct {
	queue         *queue.Queue
	provider      stt.Provider
	providerName  string
	transcripts   transcript.Store
	notifier      Notifier
	metrics       *observe.Metrics
	idleWait      time.Duration
	failurePause  time.Duration
	uploadTimeout time.Duration

	wake chan struct{}

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// New creates a Worker. It does not start the loop.
func New(cfg Config) (*Worker, error) {
	if cfg.Queue == nil {
		return nil, errors.New("upload: queue is required")
	}
	if cfg.Provider == nil {
		return nil, errors.New("upload: provider is required")
	}
	w := &Worker{
		queue:         cfg.Queue,
		provider:      cfg.Provider,
		providerName:  cfg.ProviderName,
		transcripts:   cfg.Transcripts,
		notifier:      cfg.Notifier,
		metrics:       cfg.Metrics,
		idleWait:      cfg.IdleWait,
		failurePause:  cfg.FailurePause,
		uploadTimeout: cfg.UploadTimeout,
		wake:          make(chan struct{}, 1),
	}
	if w.providerName == "" {
		w.providerName = "transcriber"
	}
	if w.metrics == nil {
		w.metrics = observe.DefaultMetrics()
	}
	if w.idleWait <= 0 {
		w.idleWait = defaultIdleWait
	}
	if w.failurePause < 0 {
		w.failurePause = 0
	} else if w.failurePause == 0 {
		w.failurePause = defaultFailurePause
	}
	if w.uploadTimeout <= 0 {
		w.uploadTimeout = defaultUploadTimeout
	}
	return w, nil
}

// Start launches the loop. Calling Start on a running worker is a no-op. The
// loop ends when ctx is cancelled or [Worker.Stop] is called.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		return
	}
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.run(ctx, w.stop, w.done)
	slog.Info("upload worker started", "provider", w.providerName)
}

// Stop ends the loop and waits for the in-flight attempt to finish. Safe to
// call on a stopped worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.stop, w.done = nil, nil
	w.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	slog.Info("upload worker stopped")
}

// Running reports whether the loop is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stop != nil
}

// Wake cuts the current idle wait short. It never blocks.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}

		attempted, err := w.ProcessNext(ctx)
		switch {
		case !attempted:
			idle := time.NewTimer(w.idleWait)
			select {
			case <-ctx.Done():
			case <-stop:
			case <-w.wake:
			case <-idle.C:
			}
			idle.Stop()
		case err != nil:
			pause := time.NewTimer(w.failurePause)
			select {
			case <-ctx.Done():
			case <-stop:
			case <-pause.C:
			}
			pause.Stop()
		}
	}
}

// ProcessNext delivers the oldest ready entry, if any. It reports whether an
// attempt was made and returns the delivery error of a failed attempt. Queue
// bookkeeping failures are logged, not returned.
//
// Once started, an attempt is not interrupted by cancelling ctx; it runs to
// completion or to the upload timeout.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	entry, ok := w.queue.Peek()
	if !ok {
		return false, nil
	}
	short := entry.ShortID()
	ctx = context.WithoutCancel(ctx)

	ctx, span := observe.StartSpan(ctx, "upload.deliver",
		trace.WithAttributes(
			attribute.String("chunk.id", entry.ID),
			attribute.Int("chunk.attempts", entry.Attempts),
			attribute.String("provider", w.providerName),
		),
	)

	slog.Info("uploading chunk", "chunk", short, "attempt", entry.Attempts+1)
	resp, err := w.upload(ctx, entry)
	observe.EndSpan(span, err)

	if err != nil {
		slog.Warn("upload failed", "chunk", short, "err", err)
		if qerr := w.queue.MarkFailed(entry.ID, err.Error()); qerr != nil {
			slog.Error("upload: record failure", "chunk", short, "err", qerr)
		}
		if w.notifier != nil {
			w.notifier.Failed(short, err)
		}
		return true, err
	}

	if rmErr := os.Remove(entry.Path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		slog.Debug("upload: remove chunk file", "path", entry.Path, "err", rmErr)
	}
	if qerr := w.queue.MarkSent(entry.ID); qerr != nil {
		slog.Error("upload: remove entry", "chunk", short, "err", qerr)
	}
	w.persistTranscript(ctx, entry, resp)
	slog.Info("chunk sent", "chunk", short)
	if w.notifier != nil && resp != nil {
		w.notifier.Delivered(short, strings.TrimSpace(resp.Text))
	}
	return true, nil
}

func (w *Worker) upload(ctx context.Context, entry queue.Entry) (*stt.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, w.uploadTimeout)
	defer cancel()

	start := time.Now()
	resp, err := w.provider.Upload(ctx, entry.Path, entry.Lang, entry.Metadata())
	w.metrics.UploadDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", w.providerName)))

	status := "ok"
	if err != nil {
		status = "error"
		w.metrics.RecordProviderError(ctx, w.providerName, "upload")
	}
	w.metrics.RecordProviderRequest(ctx, w.providerName, "upload", status)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", entry.ShortID(), err)
	}
	return resp, nil
}

// persistTranscript archives resp. The entry's session bounds win over the
// response's; the response's segments win over the entry's.
func (w *Worker) persistTranscript(ctx context.Context, entry queue.Entry, resp *stt.Response) {
	if w.transcripts == nil || resp == nil {
		return
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return
	}

	rec := transcript.Record{
		ChunkID:      entry.ID,
		Text:         text,
		SessionStart: cmp.Or(entry.SessionStart, resp.SessionStart),
		SessionEnd:   cmp.Or(entry.SessionEnd, resp.SessionEnd),
		Segments:     resp.SpeechSegments,
	}
	if len(rec.Segments) == 0 {
		rec.Segments = entry.SpeechSegments
	}

	if err := w.transcripts.Append(ctx, rec); err != nil {
		slog.Warn("transcript save failed", "chunk", entry.ShortID(), "err", err)
		w.metrics.RecordTranscript(ctx, "error")
		return
	}
	w.metrics.RecordTranscript(ctx, "ok")
}
