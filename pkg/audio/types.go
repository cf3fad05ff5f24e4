package audio

import (
	"math"
	"time"
)

// FullScale is the magnitude used to normalise 16-bit samples into [0, 1].
const FullScale = 32768.0

// Buffer is one window of interleaved signed 16-bit PCM samples.
// Sources fill it, the conditioning stages transform it in place or return a
// new Buffer of the same length.
type Buffer struct {
	// Samples holds interleaved samples; len(Samples) == Frames()*Channels.
	Samples []int16

	// SampleRate in Hz (e.g., 16000 for speech capture).
	SampleRate int

	// Channels is the interleaved channel count. 1 after [Buffer.Mono].
	Channels int
}

// Frames returns the number of sample frames (samples per channel).
func (b Buffer) Frames() int {
	if b.Channels <= 1 {
		return len(b.Samples)
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length of the buffer. Zero when the sample
// rate is unknown.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Mono returns the buffer reduced to its first channel. Mono input is
// returned unchanged without copying.
func (b Buffer) Mono() Buffer {
	if b.Channels <= 1 {
		b.Channels = 1
		return b
	}
	return Buffer{
		Samples:    FirstChannel(b.Samples, b.Channels),
		SampleRate: b.SampleRate,
		Channels:   1,
	}
}

// Peak returns the largest absolute sample value in the buffer.
func (b Buffer) Peak() int {
	peak := 0
	for _, s := range b.Samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// Level returns the peak magnitude normalised to [0, 1].
func (b Buffer) Level() float64 {
	return math.Min(1, float64(b.Peak())/FullScale)
}

// Silence returns a zero-filled mono buffer of the given length.
func Silence(frames, sampleRate int) Buffer {
	if frames < 0 {
		frames = 0
	}
	return Buffer{
		Samples:    make([]int16, frames),
		SampleRate: sampleRate,
		Channels:   1,
	}
}
