// Package operator serves the local control surface of the recorder: status,
// queue inspection and maintenance, live tunables, connection tests, daily
// summaries, recent transcripts and the operator log.
//
// All routes speak JSON except /metrics and the websocket log stream.
package operator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/daymind/internal/capture"
	"github.com/MrWong99/daymind/internal/health"
	"github.com/MrWong99/daymind/internal/observe"
	"github.com/MrWong99/daymind/internal/oplog"
	"github.com/MrWong99/daymind/internal/queue"
	"github.com/MrWong99/daymind/internal/resilience"
	"github.com/MrWong99/daymind/internal/transcript"
	"github.com/MrWong99/daymind/pkg/provider/stt"
)

// Recorder is the capture side as seen by the operator.
type Recorder interface {
	Running() bool
	Level() float64
	Tunables() *capture.Tunables
}

// Queue is the queue side as seen by the operator.
type Queue interface {
	List() []queue.Entry
	Len() int
	Clear() error
}

// Config wires a [Server] to the running pipeline. Recorder, Queue and
// Remote are required; everything else is optional and disables the routes
// that need it when nil.
type Config struct {
	Recorder Recorder
	Queue    Queue
	Remote   stt.Provider

	// Wake nudges the upload worker.
	Wake func()

	// StartCapture and StopCapture toggle recording.
	StartCapture func() error
	StopCapture  func()

	// WorkerRunning reports whether the upload worker loop is active.
	WorkerRunning func() bool

	// Breakers reports the circuit state of each transcription backend.
	Breakers func() []resilience.EntryStatus

	Transcripts transcript.Reader
	Log         *oplog.Buffer
	Health      *health.Handler
	Metrics     *observe.Metrics

	// MetricsHandler serves /metrics. Default: promhttp.Handler().
	MetricsHandler http.Handler

	// TestTimeout bounds connection tests and summary fetches. Default: 15s.
	TestTimeout time.Duration
}

// Server is the operator HTTP surface.
type Server struct {
	cfg     Config
	handler http.Handler
}

// New validates cfg and builds the route table.
func New(cfg Config) (*Server, error) {
	var errs []error
	if cfg.Recorder == nil {
		errs = append(errs, errors.New("recorder is required"))
	}
	if cfg.Queue == nil {
		errs = append(errs, errors.New("queue is required"))
	}
	if cfg.Remote == nil {
		errs = append(errs, errors.New("remote is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("operator: %w", err)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.MetricsHandler == nil {
		cfg.MetricsHandler = promhttp.Handler()
	}
	if cfg.TestTimeout <= 0 {
		cfg.TestTimeout = 15 * time.Second
	}

	s := &Server{cfg: cfg}
	mux := http.NewServeMux()
	s.routes(mux)
	s.handler = observe.Middleware(cfg.Metrics)(mux)
	return s, nil
}

// Handler returns the instrumented route table.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/queue", s.handleQueue)
	mux.HandleFunc("POST /api/queue/clear", s.handleQueueClear)
	mux.HandleFunc("POST /api/queue/flush", s.handleQueueFlush)
	mux.HandleFunc("GET /api/tunables", s.handleTunablesGet)
	mux.HandleFunc("PUT /api/tunables", s.handleTunablesPut)
	mux.HandleFunc("POST /api/capture/start", s.handleCaptureStart)
	mux.HandleFunc("POST /api/capture/stop", s.handleCaptureStop)
	mux.HandleFunc("POST /api/connection/test", s.handleConnectionTest)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/transcripts", s.handleTranscripts)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/logs/stream", s.handleLogStream)
	mux.Handle("GET /metrics", s.cfg.MetricsHandler)
	if s.cfg.Health != nil {
		s.cfg.Health.Register(mux)
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("operator: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("operator server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return fmt.Errorf("operator: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("operator: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("operator: serve: %w", err)
	}
	return nil
}
