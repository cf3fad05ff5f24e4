// Package segment isolates speech-bearing spans in a captured audio window.
//
// A [Segmenter] detects raw spans with a [Strategy], merges spans separated by
// short gaps, drops spans that are too short to be speech, pads the survivors
// and concatenates the padded audio. Segment metadata always refers to the
// unpadded spans, in milliseconds relative to the start of the input buffer.
//
// Two strategies exist. [Classifier] asks a frame-level VAD engine and is used
// whenever the engine can open a session for the configured sample rate.
// Otherwise [Threshold] compares raw sample amplitude against a level. The
// choice is made once in [New].
package segment

import (
	"errors"
	"log/slog"

	"github.com/MrWong99/daymind/pkg/audio"
	"github.com/MrWong99/daymind/pkg/provider/vad"
)

// Defaults applied by [New].
const (
	DefaultAggressiveness     = 2
	DefaultMinSpeechMs        = 250
	DefaultMinGapMs           = 250
	DefaultPaddingMs          = 150
	DefaultAmplitudeThreshold = 1500
	DefaultFrameMs            = 30
)

// Segment is a detected speech span in milliseconds relative to the start of
// the processed buffer. EndMs is always greater than StartMs for segments
// returned by [Segmenter.Process].
type Segment struct {
	StartMs int `json:"start_ms"`
	EndMs   int `json:"end_ms"`
}

// Option is a functional option for [New].
type Option func(*options)

type options struct {
	engine         vad.Engine
	aggressiveness int
	minSpeechMs    int
	minGapMs       int
	paddingMs      int
	amplitude      int
	frameMs        int
}

// WithEngine sets the frame classifier. Without an engine, or when the engine
// reports [vad.ErrUnavailable], the threshold strategy is used.
func WithEngine(e vad.Engine) Option { return func(o *options) { o.engine = e } }

// WithAggressiveness sets the classifier aggressiveness (clamped to 0–3).
func WithAggressiveness(v int) Option { return func(o *options) { o.aggressiveness = v } }

// WithMinSpeech sets the shortest span kept, in milliseconds.
func WithMinSpeech(ms int) Option { return func(o *options) { o.minSpeechMs = ms } }

// WithMinGap sets the largest gap bridged when merging spans, in milliseconds.
func WithMinGap(ms int) Option { return func(o *options) { o.minGapMs = ms } }

// WithPadding sets the audio kept on either side of a span, in milliseconds.
func WithPadding(ms int) Option { return func(o *options) { o.paddingMs = ms } }

// WithAmplitudeThreshold sets the activation level of the threshold strategy.
func WithAmplitudeThreshold(v int) Option { return func(o *options) { o.amplitude = v } }

// WithFrameMs sets the classifier frame duration. A value of zero or less
// makes the classifier report no speech at all.
func WithFrameMs(ms int) Option { return func(o *options) { o.frameMs = ms } }

// Segmenter detects, trims and pads speech. It is safe for concurrent use,
// although the capture loop only ever calls Process from one goroutine.
type Segmenter struct {
	sampleRate int
	minSpeech  int
	minGap     int
	padding    int

	threshold  *Threshold
	classifier *Classifier
	strategy   Strategy
}

// New builds a Segmenter for mono audio at sampleRate.
func New(sampleRate int, opts ...Option) *Segmenter {
	o := options{
		aggressiveness: DefaultAggressiveness,
		minSpeechMs:    DefaultMinSpeechMs,
		minGapMs:       DefaultMinGapMs,
		paddingMs:      DefaultPaddingMs,
		amplitude:      DefaultAmplitudeThreshold,
		frameMs:        DefaultFrameMs,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Segmenter{
		sampleRate: sampleRate,
		// At least one millisecond of audio, so EndMs > StartMs holds.
		minSpeech:  max(msToSamples(sampleRate, o.minSpeechMs), (sampleRate+999)/1000),
		minGap:     msToSamples(sampleRate, o.minGapMs),
		padding:    msToSamples(sampleRate, o.paddingMs),
	}
	s.threshold = NewThreshold(o.amplitude, s.minGap)
	s.strategy = s.threshold

	if o.engine != nil {
		c, err := NewClassifier(o.engine, vad.Config{
			SampleRate:     sampleRate,
			FrameSizeMs:    o.frameMs,
			Aggressiveness: o.aggressiveness,
		})
		switch {
		case err == nil:
			s.classifier = c
			s.strategy = c
		case errors.Is(err, vad.ErrUnavailable):
			slog.Warn("frame classifier unavailable, using amplitude threshold", "err", err)
		default:
			slog.Warn("frame classifier failed, using amplitude threshold", "err", err)
		}
	}
	return s
}

// Strategy returns the strategy chosen at construction.
func (s *Segmenter) Strategy() Strategy { return s.strategy }

// SetAmplitudeThreshold updates the threshold strategy's activation level.
func (s *Segmenter) SetAmplitudeThreshold(v int) { s.threshold.SetAmplitude(v) }

// SetAggressiveness updates the classifier aggressiveness. It is a no-op for
// the threshold strategy.
func (s *Segmenter) SetAggressiveness(v int) error {
	if s.classifier == nil {
		return nil
	}
	return s.classifier.SetAggressiveness(v)
}

// Process returns the concatenated padded speech audio and the unpadded
// segment metadata. Multi-channel input is reduced to its first channel. When
// no speech survives, Process returns an empty buffer and a nil slice.
func (s *Segmenter) Process(buf audio.Buffer) (audio.Buffer, []Segment) {
	mono := buf.Mono()
	out := audio.Buffer{SampleRate: mono.SampleRate, Channels: 1}

	spans := s.prepare(s.strategy.Detect(mono.Samples), len(mono.Samples))
	if len(spans) == 0 {
		return out, nil
	}

	segments := make([]Segment, 0, len(spans))
	for _, sp := range spans {
		lo := max(0, sp.Start-s.padding)
		hi := min(len(mono.Samples), sp.End+s.padding)
		if hi > lo {
			out.Samples = append(out.Samples, mono.Samples[lo:hi]...)
		}
		segments = append(segments, Segment{
			StartMs: samplesToMs(s.sampleRate, sp.Start),
			EndMs:   samplesToMs(s.sampleRate, sp.End),
		})
	}
	return out, segments
}

// Close releases the classifier session, if any.
func (s *Segmenter) Close() error {
	if s.classifier == nil {
		return nil
	}
	return s.classifier.Close()
}

// prepare merges spans whose gap is at most minGap and drops merged spans
// shorter than minSpeech.
func (s *Segmenter) prepare(spans []Span, total int) []Span {
	if len(spans) == 0 {
		return nil
	}
	merged := make([]Span, 0, len(spans))
	cur := spans[0]
	for _, sp := range spans[1:] {
		if sp.Start-cur.End <= s.minGap {
			cur.End = max(cur.End, sp.End)
			continue
		}
		merged = append(merged, cur)
		cur = sp
	}
	merged = append(merged, cur)

	kept := merged[:0]
	for _, sp := range merged {
		sp.End = min(sp.End, total)
		if sp.Len() < s.minSpeech {
			continue
		}
		kept = append(kept, sp)
	}
	return kept
}

func msToSamples(sampleRate, ms int) int {
	return max(1, sampleRate*ms/1000)
}

func samplesToMs(sampleRate, idx int) int {
	if sampleRate <= 0 {
		return 0
	}
	return idx * 1000 / sampleRate
}
