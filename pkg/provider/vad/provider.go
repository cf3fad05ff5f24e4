// Package vad defines the Engine interface for frame-level voice activity
// detection backends.
//
// A VAD engine wraps a frame classifier (e.g., WebRTC VAD) and surfaces it as a
// stateful, per-stream session. The speech segmenter creates one session per
// configuration and feeds it fixed-size PCM frames; each frame yields a single
// speech / non-speech decision.
//
// Engines that cannot run in the current build or on the current platform
// return [ErrUnavailable] from NewSession. Callers are expected to fall back to
// a simpler detection strategy in that case.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import "errors"

// ErrUnavailable is returned by NewSession when the engine cannot be used in
// this build (e.g., cgo disabled) or does not support the requested
// configuration.
var ErrUnavailable = errors.New("vad: engine unavailable")

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// frames passed to ProcessFrame. Common values: 8000, 16000, 32000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds. Most
	// classifiers operate on fixed frame sizes (10, 20, or 30 ms).
	// ProcessFrame returns an error if the supplied frame does not match this
	// size.
	FrameSizeMs int

	// Aggressiveness selects how eagerly non-speech is filtered out, from 0
	// (least aggressive) to 3 (most aggressive). Out-of-range values are
	// clamped by the engine.
	Aggressiveness int
}

// FrameBytes returns the expected length in bytes of one 16-bit mono frame.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameSizeMs / 1000 * 2
}

// SessionHandle represents an active VAD session for a single audio stream.
// Each session maintains its own detection state; Reset clears this state
// without closing the session.
type SessionHandle interface {
	// ProcessFrame classifies a single audio frame. The frame must be raw
	// little-endian 16-bit mono PCM at the SampleRate and FrameSizeMs
	// configured when the session was created.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset clears accumulated detection state without closing the session.
	Reset()

	// Close releases all resources associated with the session. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	// Returns an error wrapping [ErrUnavailable] if the engine cannot serve
	// the configuration.
	NewSession(cfg Config) (SessionHandle, error)
}

// ClampAggressiveness limits v to the supported range [0, 3].
func ClampAggressiveness(v int) int {
	return min(max(v, 0), 3)
}
