package audio

import (
	"encoding/binary"
	"math"
)

// FirstChannel extracts channel 0 from interleaved samples. Other channels are
// discarded rather than averaged so that the result matches the capture
// device's primary microphone.
func FirstChannel(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := range frames {
		out[i] = samples[i*channels]
	}
	return out
}

// SamplesToPCM encodes int16 samples as little-endian PCM bytes.
func SamplesToPCM(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// PCMToSamples decodes little-endian PCM bytes into int16 samples. A trailing
// odd byte is ignored.
func PCMToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

// ClampInt16 rounds toward zero and clamps v into the int16 range.
func ClampInt16(v float64) int16 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
