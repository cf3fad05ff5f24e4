// Package audio defines the sample buffer type, PCM helpers, the [Source]
// abstraction for capture devices, and the [NoiseReducer] conditioning stage.
//
// Device-specific sources live in subpackages (audio/portaudio); the chunk
// file encoder lives in audio/flac and the speech segmenter in audio/segment.
package audio

import (
	"context"
	"errors"
)

// ErrSourceClosed is returned by [Source.Read] after Close.
var ErrSourceClosed = errors.New("audio: source closed")

// Source is a blocking capture device. Read returns once the requested number
// of frames has been captured, the context is cancelled, or the device fails.
//
// Implementations must tolerate Read being called repeatedly from a single
// goroutine; they are not required to support concurrent readers.
type Source interface {
	// Read captures exactly frames sample frames and returns them as a
	// Buffer. On error the returned Buffer is undefined.
	Read(ctx context.Context, frames int) (Buffer, error)

	// Close releases the device. Calling Close more than once is safe.
	Close() error
}
