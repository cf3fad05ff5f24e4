// Package oplog keeps the operator-facing log: a bounded ring of recent
// human-readable lines fed from the process' slog output.
package oplog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultSize is the number of lines retained when no size is given.
const DefaultSize = 200

// Buffer is a bounded, newest-first log of operator lines. It is safe for
// concurrent use.
type Buffer struct {
	mu    sync.Mutex
	lines []string // ring storage
	next  int
	full  bool
	subs  map[chan string]struct{}
	now   func() time.Time
}

// Option configures a [Buffer].
type Option func(*Buffer)

// WithClock overrides the clock used to stamp lines.
func WithClock(now func() time.Time) Option {
	return func(b *Buffer) { b.now = now }
}

// New creates a [Buffer] retaining size lines; size <= 0 means
// [DefaultSize].
func New(size int, opts ...Option) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	b := &Buffer{
		lines: make([]string, size),
		subs:  make(map[chan string]struct{}),
		now:   time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Add stamps msg as "[HH:MM:SS] msg" in local time, stores it and fans it
// out to subscribers. Slow subscribers miss lines rather than block.
func (b *Buffer) Add(msg string) {
	b.addAt(b.now(), msg)
}

func (b *Buffer) addAt(t time.Time, msg string) {
	line := fmt.Sprintf("[%s] %s", t.Local().Format(time.TimeOnly), msg)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines[b.next] = line
	b.next = (b.next + 1) % len(b.lines)
	if b.next == 0 {
		b.full = true
	}
	for ch := range b.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

// Lines returns the retained lines, newest first.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.next
	if b.full {
		n = len(b.lines)
	}
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		idx := (b.next - i + len(b.lines)) % len(b.lines)
		out = append(out, b.lines[idx])
	}
	return out
}

// Subscribe returns a channel receiving every line added after the call and
// a function that unsubscribes and closes the channel.
func (b *Buffer) Subscribe(buffer int) (<-chan string, func()) {
	ch := make(chan string, buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Handler is an [slog.Handler] that forwards every record to an inner
// handler and copies records at or above Info into a [Buffer].
type Handler struct {
	inner  slog.Handler
	buf    *Buffer
	prefix string // rendered WithAttrs/WithGroup context
	group  string
}

// NewHandler wraps inner so that its Info+ records also land in buf.
func NewHandler(inner slog.Handler, buf *Buffer) *Handler {
	return &Handler{inner: inner, buf: buf}
}

// Enabled reports whether either the inner handler or the operator log
// wants the record.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo || h.inner.Enabled(ctx, level)
}

// Handle implements [slog.Handler].
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelInfo {
		h.buf.addAt(r.Time, h.render(r))
	}
	if !h.inner.Enabled(ctx, r.Level) {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs implements [slog.Handler].
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := h.prefix
	for _, a := range attrs {
		prefix += " " + formatAttr(h.group, a)
	}
	return &Handler{inner: h.inner.WithAttrs(attrs), buf: h.buf, prefix: prefix, group: h.group}
}

// WithGroup implements [slog.Handler].
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &Handler{inner: h.inner.WithGroup(name), buf: h.buf, prefix: h.prefix, group: group}
}

// render turns a record into "message key=value ...", with warnings and
// errors tagged by level.
func (h *Handler) render(r slog.Record) string {
	msg := r.Message
	if r.Level >= slog.LevelWarn {
		msg = r.Level.String() + " " + msg
	}
	msg += h.prefix
	r.Attrs(func(a slog.Attr) bool {
		msg += " " + formatAttr(h.group, a)
		return true
	})
	return msg
}

func formatAttr(group string, a slog.Attr) string {
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	return fmt.Sprintf("%s=%v", key, a.Value.Resolve())
}

var _ slog.Handler = (*Handler)(nil)
