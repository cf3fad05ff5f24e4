// Package queue implements the durable chunk queue that sits between audio
// capture and delivery.
//
// The queue is a JSON array of [Entry] records in a single file. Every
// mutation rewrites the whole file through a temporary file and an atomic
// rename, so a crash never leaves a half-written store behind. A missing or
// unreadable store loads as an empty queue.
//
// The queue is safe for concurrent use within one process. Nothing guards
// against two processes sharing a store.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/daymind/internal/observe"
	"github.com/MrWong99/daymind/pkg/provider/stt"
)

// DefaultLanguage is stored when Enqueue receives an empty language.
const DefaultLanguage = "auto"

const (
	maxBackoff      = 60 * time.Second
	maxErrorRunes   = 200
	storePermission = 0o644
)

// Entry is one pending delivery.
type Entry struct {
	ID             string        `json:"id"`
	Path           string        `json:"path"`
	Lang           string        `json:"lang"`
	CreatedAt      time.Time     `json:"created_at"`
	Attempts       int           `json:"attempts"`
	NextRetry      time.Time     `json:"next_retry"`
	LastError      *string       `json:"last_error"`
	SessionStart   string        `json:"session_start,omitempty"`
	SessionEnd     string        `json:"session_end,omitempty"`
	SpeechSegments []stt.Segment `json:"speech_segments,omitempty"`
}

// Metadata returns the session metadata recorded for the entry.
func (e Entry) Metadata() stt.Metadata {
	return stt.Metadata{
		SessionStart:   e.SessionStart,
		SessionEnd:     e.SessionEnd,
		SpeechSegments: slices.Clone(e.SpeechSegments),
	}
}

// ShortID returns the first six characters of the id, as used in log lines.
func (e Entry) ShortID() string {
	if len(e.ID) <= 6 {
		return e.ID
	}
	return e.ID[:6]
}

// Option is a functional option for [Open].
type Option func(*Queue)

// WithClock replaces time.Now. Tests use it to step through backoff.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithMetrics reports queue depth changes to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// Queue is the file-backed chunk queue.
type Queue struct {
	mu      sync.Mutex
	path    string
	entries []Entry
	now     func() time.Time
	metrics *observe.Metrics
}

// Open loads the queue stored at path, creating its parent directory. A
// missing or corrupt store yields an empty queue; the corruption is logged.
func Open(path string, opts ...Option) (*Queue, error) {
	q := &Queue{path: path, now: time.Now}
	for _, o := range opts {
		o(q)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("queue: create directory: %w", err)
	}
	q.entries = q.load()
	q.recordDepth(len(q.entries))
	return q, nil
}

// Path returns the location of the backing store.
func (q *Queue) Path() string { return q.path }

func (q *Queue) load() []Entry {
	data, err := os.ReadFile(q.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		slog.Warn("queue store unreadable, starting empty", "path", q.path, "err", err)
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.Warn("queue store corrupt, starting empty", "path", q.path, "err", err)
		return nil
	}
	return entries
}

// Enqueue appends a new entry for the chunk at path and returns its id.
func (q *Queue) Enqueue(path, lang string, meta stt.Metadata) (string, error) {
	if lang == "" {
		lang = DefaultLanguage
	}
	now := q.now()
	e := Entry{
		ID:             strings.ReplaceAll(uuid.NewString(), "-", ""),
		Path:           path,
		Lang:           lang,
		CreatedAt:      now,
		NextRetry:      now,
		SessionStart:   meta.SessionStart,
		SessionEnd:     meta.SessionEnd,
		SpeechSegments: slices.Clone(meta.SpeechSegments),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	next := append(slices.Clone(q.entries), e)
	if err := q.commit(next); err != nil {
		return "", fmt.Errorf("queue: enqueue: %w", err)
	}
	q.recordDepth(1)
	return e.ID, nil
}

// Peek returns the oldest ready entry: the one with the earliest CreatedAt
// among entries whose NextRetry is not in the future.
func (q *Queue) Peek() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	best := -1
	for i, e := range q.entries {
		if e.NextRetry.After(now) {
			continue
		}
		if best < 0 || e.CreatedAt.Before(q.entries[best].CreatedAt) {
			best = i
		}
	}
	if best < 0 {
		return Entry{}, false
	}
	return cloneEntry(q.entries[best]), true
}

// MarkSent removes the entry. Unknown ids are a no-op.
func (q *Queue) MarkSent(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	next := slices.DeleteFunc(slices.Clone(q.entries), func(e Entry) bool { return e.ID == id })
	if len(next) == len(q.entries) {
		return nil
	}
	if err := q.commit(next); err != nil {
		return fmt.Errorf("queue: mark sent: %w", err)
	}
	q.recordDepth(-1)
	return nil
}

// MarkFailed records a failed attempt: the attempt counter grows by one, the
// next retry moves to now + min(60 s, 2^attempts s) and the last 200
// characters of msg are kept. Unknown ids are a no-op.
func (q *Queue) MarkFailed(id, msg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := slices.IndexFunc(q.entries, func(e Entry) bool { return e.ID == id })
	if idx < 0 {
		return nil
	}
	next := slices.Clone(q.entries)
	e := cloneEntry(next[idx])
	e.Attempts++
	e.NextRetry = q.now().Add(Backoff(e.Attempts))
	tail := lastRunes(msg, maxErrorRunes)
	e.LastError = &tail
	next[idx] = e
	if err := q.commit(next); err != nil {
		return fmt.Errorf("queue: mark failed: %w", err)
	}
	return nil
}

// Clear deletes every entry's chunk file (ignoring errors) and empties the
// queue.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Debug("queue: remove chunk file", "path", e.Path, "err", err)
		}
	}
	n := len(q.entries)
	if err := q.commit(nil); err != nil {
		return fmt.Errorf("queue: clear: %w", err)
	}
	q.recordDepth(-n)
	return nil
}

// Len returns the number of entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// List returns a copy of all entries in insertion order.
func (q *Queue) List() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.entries))
	for i, e := range q.entries {
		out[i] = cloneEntry(e)
	}
	return out
}

// Backoff returns the retry delay after the given number of failed attempts.
func Backoff(attempts int) time.Duration {
	if attempts >= 6 {
		return maxBackoff
	}
	return min(maxBackoff, time.Duration(1<<attempts)*time.Second)
}

// commit persists entries and, on success, makes them the in-memory state.
// Callers hold q.mu.
func (q *Queue) commit(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := writeFileAtomic(q.path, data); err != nil {
		return err
	}
	q.entries = entries
	return nil
}

func (q *Queue) recordDepth(delta int) {
	if q.metrics == nil || delta == 0 {
		return
	}
	q.metrics.QueueDepth.Add(context.Background(), int64(delta))
}

// writeFileAtomic writes data to a temporary file in the same directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	name := tmp.Name()
	cleanup := func() { _ = os.Remove(name) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(name, storePermission); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		cleanup()
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func cloneEntry(e Entry) Entry {
	e.SpeechSegments = slices.Clone(e.SpeechSegments)
	if e.LastError != nil {
		s := *e.LastError
		e.LastError = &s
	}
	return e
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
