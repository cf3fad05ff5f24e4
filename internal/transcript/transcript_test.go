package transcript_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/daymind/internal/transcript"
	"github.com/MrWong99/daymind/pkg/provider/stt"
)

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: nil},
		{name: "blank", in: "   ", want: nil},
		{name: "single", in: "hello there", want: []string{"hello there"}},
		{name: "three", in: "One. Two! Three?", want: []string{"One.", "Two!", "Three?"}},
		{name: "no space after dot", in: "v1.2 is out. Nice", want: []string{"v1.2 is out.", "Nice"}},
		{name: "newlines", in: "First.\n\nSecond.", want: []string{"First.", "Second."}},
		{name: "trailing space", in: "Done.  ", want: []string{"Done."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := transcript.SplitSentences(tt.in)
			if !slices.Equal(got, tt.want) {
				t.Errorf("SplitSentences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 3, 1, 12, 30, 5, 250_000_000, time.UTC)
	for _, in := range []string{
		"2026-03-01T12:30:05.25Z",
		"2026-03-01T13:30:05.25+01:00",
		"2026-03-01T12:30:05.25",
	} {
		got, ok := transcript.ParseTime(in)
		if !ok || !got.Equal(want) {
			t.Errorf("ParseTime(%q) = %v, %v; want %v", in, got, ok, want)
		}
		if got.Location() != time.UTC {
			t.Errorf("ParseTime(%q) location = %v, want UTC", in, got.Location())
		}
	}
	if _, ok := transcript.ParseTime("yesterday"); ok {
		t.Error("ParseTime(yesterday) succeeded")
	}
}

func TestFormatTimestamp(t *testing.T) {
	t.Parallel()

	if got := transcript.FormatTimestamp(time.Time{}); got != "00:00:00,000" {
		t.Errorf("zero = %q", got)
	}
	ts := time.Date(2026, 3, 1, 9, 5, 7, 123_900_000, time.FixedZone("x", 3600))
	if got := transcript.FormatTimestamp(ts); got != "08:05:07,123" {
		t.Errorf("FormatTimestamp = %q, want 08:05:07,123", got)
	}
}

func TestEntries_SegmentsPairWithSentences(t *testing.T) {
	t.Parallel()

	rec := transcript.Record{
		ChunkID:      "c1",
		Text:         "First thing. Second thing.",
		SessionStart: "2026-03-01T10:00:00Z",
		SessionEnd:   "2026-03-01T10:00:30Z",
		Segments: []stt.Segment{
			{StartMs: 1000, EndMs: 2000},
			{StartMs: 5000, EndMs: 6000, StartUTC: "2026-03-01T11:00:00Z", EndUTC: "2026-03-01T11:00:01Z"},
			{StartMs: 9000, EndMs: 9500},
		},
	}
	got := transcript.Entries(rec)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	checks := []struct {
		text       string
		start, end time.Time
	}{
		{"First thing.", base.Add(time.Second), base.Add(2 * time.Second)},
		{"Second thing.", base.Add(time.Hour), base.Add(time.Hour + time.Second)},
		{"Second thing.", base.Add(9 * time.Second), base.Add(9500 * time.Millisecond)},
	}
	for i, c := range checks {
		e := got[i]
		if e.ChunkID != "c1" || e.Seq != i {
			t.Errorf("entry %d id/seq = %s/%d", i, e.ChunkID, e.Seq)
		}
		if e.Text != c.text {
			t.Errorf("entry %d text = %q, want %q", i, e.Text, c.text)
		}
		if !e.Start.Equal(c.start) || !e.End.Equal(c.end) {
			t.Errorf("entry %d = %v..%v, want %v..%v", i, e.Start, e.End, c.start, c.end)
		}
	}
}

func TestEntries_NoSegmentsUsesSessionBounds(t *testing.T) {
	t.Parallel()

	got := transcript.Entries(transcript.Record{
		ChunkID:      "c2",
		Text:         "  ",
		SessionStart: "2026-03-01T10:00:00Z",
		SessionEnd:   "2026-03-01T10:00:30Z",
	})
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Text != transcript.NoTranscription {
		t.Errorf("text = %q, want %q", got[0].Text, transcript.NoTranscription)
	}
	if transcript.FormatTimestamp(got[0].End) != "10:00:30,000" {
		t.Errorf("end = %v", got[0].End)
	}
}

func TestEntries_UnknownTimes(t *testing.T) {
	t.Parallel()

	got := transcript.Entries(transcript.Record{
		ChunkID:  "c3",
		Text:     "Hi.",
		Segments: []stt.Segment{{StartMs: 100, EndMs: 200}},
	})
	if !got[0].Start.IsZero() || !got[0].End.IsZero() {
		t.Errorf("times = %v..%v, want zero", got[0].Start, got[0].End)
	}
}
