package operator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/daymind/internal/capture"
	"github.com/MrWong99/daymind/internal/observe"
	"github.com/MrWong99/daymind/internal/queue"
	"github.com/MrWong99/daymind/internal/resilience"
	"github.com/MrWong99/daymind/internal/transcript"
	"github.com/MrWong99/daymind/pkg/provider/stt"
)

const (
	defaultTranscriptLimit = 50
	maxTranscriptLimit     = 500
	logStreamBuffer        = 64
)

// Status is the body of GET /api/status.
type Status struct {
	Capturing     bool                     `json:"capturing"`
	WorkerRunning bool                     `json:"worker_running"`
	Level         float64                  `json:"level"`
	QueueSize     int                      `json:"queue_size"`
	Tunables      capture.TunableValues    `json:"tunables"`
	Breakers      []resilience.EntryStatus `json:"breakers,omitempty"`
}

// QueueEntry is one row of GET /api/queue.
type QueueEntry struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Lang      string    `json:"lang"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"attempts"`
	NextRetry time.Time `json:"next_retry"`
	LastError string    `json:"last_error,omitempty"`
}

// ConnectionResult is the body of POST /api/connection/test.
type ConnectionResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// SummaryResult is the body of GET /api/summary.
type SummaryResult struct {
	Date    string `json:"date"`
	Summary string `json:"summary_md"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := Status{
		Capturing: s.cfg.Recorder.Running(),
		Level:     s.cfg.Recorder.Level(),
		QueueSize: s.cfg.Queue.Len(),
		Tunables:  s.cfg.Recorder.Tunables().Snapshot(),
	}
	if s.cfg.WorkerRunning != nil {
		st.WorkerRunning = s.cfg.WorkerRunning()
	}
	if s.cfg.Breakers != nil {
		st.Breakers = s.cfg.Breakers()
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	entries := s.cfg.Queue.List()
	out := make([]QueueEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, queueEntry(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func queueEntry(e queue.Entry) QueueEntry {
	qe := QueueEntry{
		ID:        e.ID,
		Path:      e.Path,
		Lang:      e.Lang,
		CreatedAt: e.CreatedAt,
		Attempts:  e.Attempts,
		NextRetry: e.NextRetry,
	}
	if e.LastError != nil {
		qe.LastError = *e.LastError
	}
	return qe
}

func (s *Server) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	n := s.cfg.Queue.Len()
	if err := s.cfg.Queue.Clear(); err != nil {
		observe.Logger(r.Context()).Error("queue clear failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	slog.Info("queue cleared", "count", n)
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (s *Server) handleQueueFlush(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Wake != nil {
		s.cfg.Wake()
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleTunablesGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Recorder.Tunables().Snapshot())
}

// handleTunablesPut applies a partial update; omitted fields keep their
// current value. Values are clamped to their valid ranges.
func (s *Server) handleTunablesPut(w http.ResponseWriter, r *http.Request) {
	t := s.cfg.Recorder.Tunables()
	v := t.Snapshot()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid tunables: %w", err))
		return
	}
	t.Set(v)
	got := t.Snapshot()
	slog.Info("tunables updated",
		"vad_threshold", got.VADThreshold,
		"vad_aggressiveness", got.VADAggressiveness,
		"noise_gate", got.NoiseGate)
	writeJSON(w, http.StatusOK, got)
}

func (s *Server) handleCaptureStart(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.StartCapture == nil {
		writeError(w, http.StatusNotImplemented, errors.New("capture control not available"))
		return
	}
	if err := s.cfg.StartCapture(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"capturing": s.cfg.Recorder.Running()})
}

func (s *Server) handleCaptureStop(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.StopCapture == nil {
		writeError(w, http.StatusNotImplemented, errors.New("capture control not available"))
		return
	}
	s.cfg.StopCapture()
	writeJSON(w, http.StatusOK, map[string]bool{"capturing": s.cfg.Recorder.Running()})
}

func (s *Server) handleConnectionTest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.TestTimeout)
	defer cancel()

	ok, err := s.cfg.Remote.TestConnection(ctx)
	res := ConnectionResult{OK: ok && err == nil}
	switch {
	case err != nil:
		res.Error = err.Error()
		slog.Warn("connection test failed", "err", err)
	case !ok:
		res.Error = "server did not answer its health check"
		slog.Warn("connection test failed", "err", res.Error)
	default:
		slog.Info("connection test succeeded")
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format(time.DateOnly)
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("date must be YYYY-MM-DD, got %q", date))
		return
	}
	sf, ok := s.cfg.Remote.(stt.SummaryFetcher)
	if !ok {
		writeError(w, http.StatusNotImplemented, errors.New("transcriber does not provide summaries"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.TestTimeout)
	defer cancel()
	summary, err := sf.FetchSummary(ctx, date)
	switch {
	case errors.Is(err, stt.ErrSummaryUnavailable):
		writeError(w, http.StatusNotFound, stt.ErrSummaryUnavailable)
	case err != nil:
		observe.Logger(r.Context()).Warn("summary fetch failed", "date", date, "err", err)
		writeError(w, http.StatusBadGateway, err)
	default:
		writeJSON(w, http.StatusOK, SummaryResult{Date: date, Summary: summary})
	}
}

// handleTranscripts lists recent transcript entries, or full-text matches
// when q is set and the store supports search.
func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Transcripts == nil {
		writeError(w, http.StatusNotImplemented, errors.New("transcript store is not readable"))
		return
	}
	limit := defaultTranscriptLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be a positive integer, got %q", raw))
			return
		}
		limit = min(n, maxTranscriptLimit)
	}

	var (
		entries []transcript.Entry
		err     error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		searcher, ok := s.cfg.Transcripts.(transcript.Searcher)
		if !ok {
			writeError(w, http.StatusNotImplemented, errors.New("transcript store does not support search"))
			return
		}
		entries, err = searcher.Search(r.Context(), q, limit)
	} else {
		entries, err = s.cfg.Transcripts.Recent(r.Context(), limit)
	}
	if err != nil {
		observe.Logger(r.Context()).Error("transcript query failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []transcript.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	lines := []string{}
	if s.cfg.Log != nil {
		lines = s.cfg.Log.Lines()
	}
	writeJSON(w, http.StatusOK, lines)
}

// handleLogStream pushes every new operator log line as a JSON string over
// a websocket until either side goes away.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Log == nil {
		writeError(w, http.StatusNotImplemented, errors.New("operator log not available"))
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Debug("websocket accept failed", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	lines, cancel := s.cfg.Log.Subscribe(logStreamBuffer)
	defer cancel()

	// CloseRead drains client frames and cancels ctx once the peer closes.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusGoingAway, "")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, line); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}
