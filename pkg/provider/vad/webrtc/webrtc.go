// Package webrtc provides a [vad.Engine] backed by the WebRTC voice activity
// detector (github.com/maxhawkins/go-webrtcvad).
//
// The detector is a cgo binding. Builds with CGO_ENABLED=0 compile a stub whose
// NewSession always returns [vad.ErrUnavailable], which makes the segmenter fall
// back to amplitude thresholding.
//
// Supported sample rates are 8, 16, 32 and 48 kHz with 10, 20 or 30 ms frames.
package webrtc

import "github.com/MrWong99/daymind/pkg/provider/vad"

// Engine creates WebRTC VAD sessions. The zero value is ready to use.
type Engine struct{}

// New returns a WebRTC VAD engine.
func New() *Engine { return &Engine{} }

var _ vad.Engine = (*Engine)(nil)
