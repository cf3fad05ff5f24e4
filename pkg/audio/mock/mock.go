// Package mock provides an in-memory [audio.Source] for unit tests.
//
// The mock is safe for concurrent use. It records every Read call so that
// tests can assert on call counts and requested frame counts, and it exposes
// exported fields that control the returned buffers.
//
// Typical usage:
//
//	src := &mock.Source{
//	    SampleRate: 16000,
//	    Windows:    [][]int16{speech, silence},
//	}
//	buf, err := src.Read(ctx, 16000)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/daymind/pkg/audio"
)

// Source is a mock implementation of [audio.Source].
type Source struct {
	mu sync.Mutex

	// SampleRate is reported on every returned buffer. Default: 16000.
	SampleRate int

	// Channels is reported on every returned buffer. Default: 1.
	Channels int

	// Windows are returned by successive Read calls, padded with zeros or
	// truncated to the requested length. Once exhausted, Read returns silence.
	Windows [][]int16

	// ReadErr, when non-nil, is returned by every Read call.
	ReadErr error

	// ReadCalls records the frames argument of each Read call.
	ReadCalls []int

	// CloseCount records how many times Close was called.
	CloseCount int

	// OnRead, when set, is invoked after a Read has been recorded and before
	// it returns. Tests use it to observe or stop the capture loop.
	OnRead func(call int)
}

// Read implements [audio.Source].
func (s *Source) Read(ctx context.Context, frames int) (audio.Buffer, error) {
	s.mu.Lock()
	s.ReadCalls = append(s.ReadCalls, frames)
	call := len(s.ReadCalls)
	hook := s.OnRead

	rate := s.SampleRate
	if rate == 0 {
		rate = 16000
	}
	ch := s.Channels
	if ch == 0 {
		ch = 1
	}

	var (
		buf audio.Buffer
		err = s.ReadErr
	)
	if err == nil {
		samples := make([]int16, frames*ch)
		if len(s.Windows) > 0 {
			copy(samples, s.Windows[0])
			s.Windows = s.Windows[1:]
		}
		buf = audio.Buffer{Samples: samples, SampleRate: rate, Channels: ch}
	}
	s.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err != nil {
		return audio.Buffer{}, err
	}
	if err := ctx.Err(); err != nil {
		return audio.Buffer{}, err
	}
	return buf, nil
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	return nil
}

// Calls returns the number of Read calls so far.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ReadCalls)
}

// Ensure Source implements audio.Source at compile time.
var _ audio.Source = (*Source)(nil)
