// Package transcript archives the text returned for delivered chunks.
//
// A [Record] is what the upload worker hands over after a successful
// delivery: the chunk id, the transcript text and the capture-session
// metadata. [Entries] turns a record into one timed [Entry] per speech
// segment by pairing segments with the sentences of the text. The backends
// in the subpackages persist those entries as an SRT file, in PostgreSQL or
// in a Badger key-value store.
package transcript

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/MrWong99/daymind/pkg/provider/stt"
)

const (
	// NoTranscription replaces empty transcript text.
	NoTranscription = "(no transcription)"

	// BlankSegment replaces a sentence that is empty after trimming.
	BlankSegment = "(blank segment)"
)

// Record is one delivered chunk's transcript.
type Record struct {
	ChunkID      string
	Text         string
	SessionStart string
	SessionEnd   string
	Segments     []stt.Segment
}

// Entry is one timed line of a transcript. Start and End are zero when the
// record carried no usable timestamps.
type Entry struct {
	ChunkID string    `json:"chunk_id"`
	Seq     int       `json:"seq"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Text    string    `json:"text"`
}

// Store persists transcript records.
type Store interface {
	// Append archives rec. Implementations must be safe for concurrent use.
	Append(ctx context.Context, rec Record) error

	// Close releases resources held by the store.
	Close() error
}

// Reader is implemented by stores that can return archived entries.
type Reader interface {
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Entries expands rec into one entry per speech segment. Segment i gets
// sentence min(i, n-1) of the text. Without segments a single entry spans the
// session bounds.
func Entries(rec Record) []Entry {
	sentences := SplitSentences(rec.Text)
	if len(sentences) == 0 {
		sentences = []string{NoTranscription}
	}

	segments := rec.Segments
	if len(segments) == 0 {
		segments = []stt.Segment{{StartUTC: rec.SessionStart, EndUTC: rec.SessionEnd}}
	}

	base, baseOK := ParseTime(rec.SessionStart)
	out := make([]Entry, 0, len(segments))
	for i, seg := range segments {
		text := strings.TrimSpace(sentences[min(i, len(sentences)-1)])
		if text == "" {
			text = strings.TrimSpace(sentences[len(sentences)-1])
			if text == "" {
				text = BlankSegment
			}
		}
		out = append(out, Entry{
			ChunkID: rec.ChunkID,
			Seq:     i,
			Start:   segmentTime(seg.StartUTC, base, baseOK, seg.StartMs),
			End:     segmentTime(seg.EndUTC, base, baseOK, seg.EndMs),
			Text:    text,
		})
	}
	return out
}

// segmentTime prefers the absolute timestamp and falls back to the session
// start plus the millisecond offset.
func segmentTime(iso string, base time.Time, baseOK bool, offsetMs int) time.Time {
	if iso != "" {
		if t, ok := ParseTime(iso); ok {
			return t
		}
		return time.Time{}
	}
	if !baseOK {
		return time.Time{}
	}
	return base.Add(time.Duration(offsetMs) * time.Millisecond)
}

// ParseTime parses an ISO-8601 timestamp. Values without a zone are taken as
// UTC. The result is always in UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02T15:04:05.999999999", s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// FormatISO renders t as ISO-8601 UTC with a Z suffix.
func FormatISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// SplitSentences splits text after '.', '!' or '?' when followed by
// whitespace. Empty pieces are dropped and the rest trimmed.
func SplitSentences(text string) []string {
	var (
		out   []string
		start int
		runes = []rune(text)
	)
	flush := func(end int) {
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
	}
	for i := 0; i < len(runes); i++ {
		if !strings.ContainsRune(".!?", runes[i]) {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 {
			continue
		}
		flush(i + 1)
		start = j
		i = j - 1
	}
	flush(len(runes))
	return out
}

// FormatTimestamp renders t as an SRT timestamp (HH:MM:SS,mmm) in UTC. The
// zero time renders as 00:00:00,000.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "00:00:00,000"
	}
	t = t.UTC()
	return fmt.Sprintf("%02d:%02d:%02d,%03d", t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/int(time.Millisecond))
}

// Searcher is implemented by stores with full-text search.
type Searcher interface {
	// Search returns up to limit entries matching query, newest first.
	Search(ctx context.Context, query string, limit int) ([]Entry, error)
}
