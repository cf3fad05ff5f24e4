package segment

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/daymind/pkg/audio"
	"github.com/MrWong99/daymind/pkg/provider/vad"
)

// Span is a half-open range [Start, End) of sample indices.
type Span struct {
	Start, End int
}

// Len returns the number of samples covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Strategy detects raw speech spans in mono samples. Implementations are
// selected once when a [Segmenter] is built.
type Strategy interface {
	// Name identifies the strategy in logs and metrics.
	Name() string

	// Detect returns speech spans in ascending order. Spans never overlap.
	Detect(mono []int16) []Span
}

// ---------------------------------------------------------------------------
// Threshold
// ---------------------------------------------------------------------------

// Threshold marks samples whose magnitude reaches a fixed amplitude as active.
// A span closes once minGap consecutive inactive samples have been seen, or at
// the end of the buffer.
type Threshold struct {
	threshold atomic.Int64
	minGap    int
}

// NewThreshold returns a Threshold strategy. minGapSamples below 1 is raised
// to 1.
func NewThreshold(amplitude, minGapSamples int) *Threshold {
	t := &Threshold{minGap: max(1, minGapSamples)}
	t.threshold.Store(int64(amplitude))
	return t
}

// SetAmplitude changes the activation amplitude. Safe to call concurrently
// with Detect; the new value applies to the next call.
func (t *Threshold) SetAmplitude(v int) { t.threshold.Store(int64(v)) }

// Amplitude returns the current activation amplitude.
func (t *Threshold) Amplitude() int { return int(t.threshold.Load()) }

// Name implements [Strategy].
func (t *Threshold) Name() string { return "threshold" }

// Detect implements [Strategy].
func (t *Threshold) Detect(mono []int16) []Span {
	thr := t.threshold.Load()
	var (
		spans   []Span
		start   = -1
		silence int
	)
	for idx, v := range mono {
		a := int64(v)
		if a < 0 {
			a = -a
		}
		if a >= thr {
			if start < 0 {
				start = idx
			}
			silence = 0
			continue
		}
		if start < 0 {
			continue
		}
		silence++
		if silence >= t.minGap {
			spans = append(spans, Span{Start: start, End: idx})
			start = -1
			silence = 0
		}
	}
	if start >= 0 {
		spans = append(spans, Span{Start: start, End: len(mono)})
	}
	return spans
}

// ---------------------------------------------------------------------------
// Classifier
// ---------------------------------------------------------------------------

// Classifier splits the buffer into fixed frames and asks a [vad.Engine]
// session whether each frame contains speech. Contiguous speech frames form a
// span; a classification error counts as non-speech.
type Classifier struct {
	mu       sync.Mutex
	engine   vad.Engine
	cfg      vad.Config
	sess     vad.SessionHandle
	frameLen int
}

// NewClassifier opens a session on engine. The returned error wraps
// [vad.ErrUnavailable] when the engine cannot serve cfg.
func NewClassifier(engine vad.Engine, cfg vad.Config) (*Classifier, error) {
	if engine == nil {
		return nil, fmt.Errorf("segment: no vad engine: %w", vad.ErrUnavailable)
	}
	cfg.Aggressiveness = vad.ClampAggressiveness(cfg.Aggressiveness)
	sess, err := engine.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("segment: open classifier: %w", err)
	}
	frameLen := 0
	if cfg.FrameSizeMs > 0 {
		frameLen = msToSamples(cfg.SampleRate, cfg.FrameSizeMs)
	}
	return &Classifier{engine: engine, cfg: cfg, sess: sess, frameLen: frameLen}, nil
}

// SetAggressiveness reopens the session with a new aggressiveness level. On
// failure the previous session stays in use.
func (c *Classifier) SetAggressiveness(v int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v = vad.ClampAggressiveness(v)
	if v == c.cfg.Aggressiveness {
		return nil
	}
	cfg := c.cfg
	cfg.Aggressiveness = v
	sess, err := c.engine.NewSession(cfg)
	if err != nil {
		return fmt.Errorf("segment: reopen classifier: %w", err)
	}
	_ = c.sess.Close()
	c.sess = sess
	c.cfg = cfg
	return nil
}

// Aggressiveness returns the level the current session was opened with.
func (c *Classifier) Aggressiveness() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Aggressiveness
}

// Name implements [Strategy].
func (c *Classifier) Name() string { return "classifier" }

// Detect implements [Strategy]. Each call starts from a reset session.
func (c *Classifier) Detect(mono []int16) []Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.frameLen
	if n <= 0 {
		return nil
	}
	c.sess.Reset()
	var (
		spans []Span
		start = -1
		end   int
	)
	for off := 0; off+n <= len(mono); off += n {
		ev, err := c.sess.ProcessFrame(audio.SamplesToPCM(mono[off : off+n]))
		if err == nil && ev.IsSpeech() {
			if start < 0 {
				start = off
			}
			end = off + n
			continue
		}
		if start >= 0 {
			spans = append(spans, Span{Start: start, End: end})
			start = -1
		}
	}
	if start >= 0 {
		spans = append(spans, Span{Start: start, End: end})
	}
	return spans
}

// Close releases the classifier session.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.Close()
}
