// Package mock provides test doubles for the vad package interfaces.
//
// Engine records the Config of every session it opens. Session classifies
// frames in one of three ways, checked in order: ProcessFrameErr fails every
// frame, Script replays a fixed decision sequence, and AmplitudeThreshold
// turns the session into a peak-energy classifier so segmenter tests can
// drive the frame-classifier path with synthetic tones.
package mock

import (
	"sync"

	"github.com/MrWong99/daymind/pkg/audio"
	"github.com/MrWong99/daymind/pkg/provider/vad"
)

// NewSessionCall records a single invocation of Engine.NewSession.
type NewSessionCall struct {
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. A fresh Session is returned when nil.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, fails every NewSession call.
	NewSessionErr error

	NewSessionCalls []NewSessionCall
}

// NewSession records cfg and returns Session or NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

var _ vad.Engine = (*Engine)(nil)

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// Script lists per-frame decisions. Frames past the end of Script are
	// silence. Ignored when empty.
	Script []bool

	// AmplitudeThreshold, when positive and Script is empty, marks a frame as
	// speech if any sample magnitude reaches it.
	AmplitudeThreshold int

	ProcessFrameErr error
	CloseErr        error

	// Frames counts ProcessFrame calls since the last Reset.
	Frames int
	Resets int
	Closed bool
}

// ProcessFrame classifies frame according to the session's mode.
func (s *Session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.Frames
	s.Frames++
	if s.ProcessFrameErr != nil {
		return vad.VADEvent{}, s.ProcessFrameErr
	}
	var speech bool
	switch {
	case len(s.Script) > 0:
		speech = idx < len(s.Script) && s.Script[idx]
	case s.AmplitudeThreshold > 0:
		buf := audio.Buffer{Samples: audio.PCMToSamples(frame), Channels: 1}
		speech = buf.Peak() >= s.AmplitudeThreshold
	}
	if speech {
		return vad.VADEvent{Type: vad.VADSpeech, Probability: 1}, nil
	}
	return vad.VADEvent{Type: vad.VADSilence}, nil
}

// Reset rewinds the frame counter.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Frames = 0
	s.Resets++
}

// Close marks the session closed and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return s.CloseErr
}

var _ vad.SessionHandle = (*Session)(nil)
