package capture

import (
	"math"
	"sync/atomic"

	"github.com/MrWong99/daymind/pkg/provider/vad"
)

// Tunable defaults.
const (
	DefaultVADThreshold      = 3500
	DefaultVADAggressiveness = 2
	DefaultNoiseGate         = 0.12

	maxVADThreshold = math.MaxInt16
)

// TunableValues is a snapshot of the live capture parameters.
type TunableValues struct {
	// VADThreshold is the amplitude that activates the threshold strategy.
	VADThreshold int `json:"vad_threshold" yaml:"vad_threshold"`

	// VADAggressiveness is the classifier mode, 0 (lenient) to 3 (strict).
	VADAggressiveness int `json:"vad_aggressiveness" yaml:"vad_aggressiveness"`

	// NoiseGate is the normalised peak a conditioned window must reach to be
	// segmented at all, 0 to 1.
	NoiseGate float64 `json:"noise_gate" yaml:"noise_gate"`
}

// DefaultTunables returns the default values.
func DefaultTunables() TunableValues {
	return TunableValues{
		VADThreshold:      DefaultVADThreshold,
		VADAggressiveness: DefaultVADAggressiveness,
		NoiseGate:         DefaultNoiseGate,
	}
}

// Clamp returns v with every field forced into its valid range.
func (v TunableValues) Clamp() TunableValues {
	v.VADThreshold = min(max(v.VADThreshold, 0), maxVADThreshold)
	v.VADAggressiveness = vad.ClampAggressiveness(v.VADAggressiveness)
	if math.IsNaN(v.NoiseGate) {
		v.NoiseGate = 0
	}
	v.NoiseGate = min(max(v.NoiseGate, 0), 1)
	return v
}

// Tunables holds the capture parameters that can change while the loop runs.
// One instance is shared by the configuration surface and the capture loop;
// updates take effect on the next window. Safe for concurrent use.
type Tunables struct {
	threshold      atomic.Int64
	aggressiveness atomic.Int64
	gate           atomic.Uint64
}

// NewTunables returns Tunables initialised with v, clamped.
func NewTunables(v TunableValues) *Tunables {
	t := &Tunables{}
	t.Set(v)
	return t
}

// VADThreshold returns the amplitude threshold.
func (t *Tunables) VADThreshold() int { return int(t.threshold.Load()) }

// SetVADThreshold updates the amplitude threshold, clamped to 0–32767.
func (t *Tunables) SetVADThreshold(v int) {
	t.threshold.Store(int64(min(max(v, 0), maxVADThreshold)))
}

// VADAggressiveness returns the classifier aggressiveness.
func (t *Tunables) VADAggressiveness() int { return int(t.aggressiveness.Load()) }

// SetVADAggressiveness updates the classifier aggressiveness, clamped to 0–3.
func (t *Tunables) SetVADAggressiveness(v int) {
	t.aggressiveness.Store(int64(vad.ClampAggressiveness(v)))
}

// NoiseGate returns the gate level.
func (t *Tunables) NoiseGate() float64 { return math.Float64frombits(t.gate.Load()) }

// SetNoiseGate updates the gate level, clamped to 0–1.
func (t *Tunables) SetNoiseGate(v float64) {
	v = TunableValues{NoiseGate: v}.Clamp().NoiseGate
	t.gate.Store(math.Float64bits(v))
}

// Snapshot returns the current values.
func (t *Tunables) Snapshot() TunableValues {
	return TunableValues{
		VADThreshold:      t.VADThreshold(),
		VADAggressiveness: t.VADAggressiveness(),
		NoiseGate:         t.NoiseGate(),
	}
}

// Set replaces all values, clamped.
func (t *Tunables) Set(v TunableValues) {
	t.SetVADThreshold(v.VADThreshold)
	t.SetVADAggressiveness(v.VADAggressiveness)
	t.SetNoiseGate(v.NoiseGate)
}
