package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/daymind/internal/queue"
	"github.com/MrWong99/daymind/pkg/provider/stt"
)

// Metadata converts the chunk into the session metadata sent with its
// upload. Every segment also carries absolute UTC bounds.
func (c Chunk) Metadata() stt.Metadata {
	segs := make([]stt.Segment, len(c.Segments))
	for i, s := range c.Segments {
		segs[i] = stt.Segment{
			StartMs:  s.StartMs,
			EndMs:    s.EndMs,
			StartUTC: isoUTC(c.SessionStart.Add(time.Duration(s.StartMs) * time.Millisecond)),
			EndUTC:   isoUTC(c.SessionStart.Add(time.Duration(s.EndMs) * time.Millisecond)),
		}
	}
	return stt.Metadata{
		SessionStart:   isoUTC(c.SessionStart),
		SessionEnd:     isoUTC(c.SessionEnd),
		SpeechSegments: segs,
	}
}

// Enqueuer returns an OnChunk callback that queues every chunk under lang
// and then calls wake. A chunk that cannot be queued keeps its file on disk.
func Enqueuer(q *queue.Queue, lang string, wake func()) func(context.Context, Chunk) {
	return func(_ context.Context, c Chunk) {
		id, err := q.Enqueue(c.Path, lang, c.Metadata())
		if err != nil {
			slog.Error("chunk could not be queued", "path", c.Path, "err", err)
			return
		}
		slog.Info("chunk queued", "chunk", queue.Entry{ID: id}.ShortID())
		if wake != nil {
			wake()
		}
	}
}

func isoUTC(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
