//go:build !cgo

package webrtc

import (
	"fmt"

	"github.com/MrWong99/daymind/pkg/provider/vad"
)

// NewSession implements [vad.Engine]. Without cgo the detector cannot be
// linked, so every call fails with [vad.ErrUnavailable].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	return nil, fmt.Errorf("webrtc vad: built without cgo: %w", vad.ErrUnavailable)
}
