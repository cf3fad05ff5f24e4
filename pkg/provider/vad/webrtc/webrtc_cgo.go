//go:build cgo

package webrtc

import (
	"fmt"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/MrWong99/daymind/pkg/provider/vad"
)

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	det, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc vad: create detector: %w", err)
	}
	frameLen := cfg.SampleRate * cfg.FrameSizeMs / 1000
	if !det.ValidRateAndFrameLength(cfg.SampleRate, frameLen) {
		return nil, fmt.Errorf("webrtc vad: %d Hz / %d ms: %w", cfg.SampleRate, cfg.FrameSizeMs, vad.ErrUnavailable)
	}
	mode := vad.ClampAggressiveness(cfg.Aggressiveness)
	if err := det.SetMode(mode); err != nil {
		return nil, fmt.Errorf("webrtc vad: set mode %d: %w", mode, err)
	}
	return &session{det: det, cfg: cfg, mode: mode}, nil
}

type session struct {
	mu     sync.Mutex
	det    *webrtcvad.VAD
	cfg    vad.Config
	mode   int
	closed bool
}

func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, fmt.Errorf("webrtc vad: session closed")
	}
	if want := s.cfg.FrameBytes(); len(frame) != want {
		return vad.VADEvent{}, fmt.Errorf("webrtc vad: frame is %d bytes, want %d", len(frame), want)
	}
	active, err := s.det.Process(s.cfg.SampleRate, frame)
	if err != nil {
		return vad.VADEvent{}, fmt.Errorf("webrtc vad: process: %w", err)
	}
	if active {
		return vad.VADEvent{Type: vad.VADSpeech, Probability: 1}, nil
	}
	return vad.VADEvent{Type: vad.VADSilence}, nil
}

// Reset replaces the detector so no history leaks into the next stream.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	det, err := webrtcvad.New()
	if err != nil {
		return
	}
	if err := det.SetMode(s.mode); err != nil {
		return
	}
	s.det = det
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.det = nil
	return nil
}
