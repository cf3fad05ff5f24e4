package audio

import (
	"math"
	"sync"
)

const (
	defaultCutoffHz  = 120.0
	minCutoffHz      = 10.0
	defaultSmoothing = 0.9
	maxSmoothing     = 0.999

	// gateWindowSeconds is how often the gate threshold is re-derived from
	// the running noise floor.
	gateWindowSeconds = 0.02
	minGateWindow     = 64

	// gateRatio scales the RMS noise floor into the open/close threshold.
	gateRatio = 1.5

	// residualFloor zeroes whatever the gate let through below this
	// magnitude (16-bit scale).
	residualFloor = 60.0

	// warmupSeconds of every buffer are forced to zero to hide the filter
	// settling at window boundaries.
	warmupSeconds = 0.01
)

// NoiseOption configures a [NoiseReducer].
type NoiseOption func(*NoiseReducer)

// WithCutoff sets the high-pass corner frequency in Hz. Values below 10 Hz are
// raised to 10 Hz. Default: 120 Hz.
func WithCutoff(hz float64) NoiseOption {
	return func(r *NoiseReducer) {
		r.cutoff = hz
	}
}

// WithSmoothing sets the exponential smoothing factor of the noise-floor
// estimate, clamped to [0, 0.999]. Default: 0.9.
func WithSmoothing(s float64) NoiseOption {
	return func(r *NoiseReducer) {
		r.smoothing = s
	}
}

// NoiseReducer conditions raw capture windows with a single-pole high-pass
// filter followed by a hard noise gate. The high-pass state carries over
// between calls to Apply so consecutive windows join without clicks; the gate
// estimate starts fresh for each window.
//
// A NoiseReducer is safe for concurrent use, although interleaving windows
// from different streams through one instance mixes their filter state.
type NoiseReducer struct {
	sampleRate int
	cutoff     float64
	smoothing  float64

	mu      sync.Mutex
	prevIn  float64
	prevOut float64
}

// NewNoiseReducer creates a NoiseReducer for audio at sampleRate Hz.
func NewNoiseReducer(sampleRate int, opts ...NoiseOption) *NoiseReducer {
	r := &NoiseReducer{
		sampleRate: sampleRate,
		cutoff:     defaultCutoffHz,
		smoothing:  defaultSmoothing,
	}
	for _, o := range opts {
		o(r)
	}
	r.cutoff = math.Max(minCutoffHz, r.cutoff)
	r.smoothing = math.Max(0, math.Min(r.smoothing, maxSmoothing))
	return r
}

// Apply returns a conditioned copy of b with the same length, sample rate and
// channel layout. An empty buffer is returned unchanged.
func (r *NoiseReducer) Apply(b Buffer) Buffer {
	if len(b.Samples) == 0 || r.sampleRate <= 0 {
		return b
	}

	data := make([]float64, len(b.Samples))
	for i, s := range b.Samples {
		data[i] = float64(s)
	}

	r.highPass(data)
	r.gate(data)

	warmup := min(len(data), int(float64(r.sampleRate)*warmupSeconds))
	out := make([]int16, len(data))
	for i, v := range data {
		if i < warmup || math.Abs(v) < residualFloor {
			continue
		}
		out[i] = ClampInt16(v)
	}

	return Buffer{Samples: out, SampleRate: b.SampleRate, Channels: b.Channels}
}

// Reset clears the carried high-pass state.
func (r *NoiseReducer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prevIn, r.prevOut = 0, 0
}

// highPass applies y[n] = alpha*(y[n-1] + x[n] - x[n-1]) in place.
func (r *NoiseReducer) highPass(data []float64) {
	rc := 1 / (2 * math.Pi * r.cutoff)
	dt := 1 / float64(r.sampleRate)
	alpha := rc / (rc + dt)

	r.mu.Lock()
	defer r.mu.Unlock()

	prevIn, prevOut := r.prevIn, r.prevOut
	for i, x := range data {
		y := alpha * (prevOut + x - prevIn)
		data[i] = y
		prevOut = y
		prevIn = x
	}
	r.prevIn, r.prevOut = prevIn, prevOut
}

// gate zeroes every sample whose magnitude does not exceed the current
// threshold. The threshold is refreshed once per gate window.
func (r *NoiseReducer) gate(data []float64) {
	window := max(minGateWindow, int(float64(r.sampleRate)*gateWindowSeconds))
	var floor, current float64
	for i, x := range data {
		floor = r.smoothing*floor + (1-r.smoothing)*x*x
		if i%window == 0 {
			current = math.Sqrt(floor)
		}
		if math.Abs(x) <= current*gateRatio {
			data[i] = 0
		}
	}
}
