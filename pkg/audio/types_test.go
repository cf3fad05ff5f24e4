package audio_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/daymind/pkg/audio"
)

func TestBuffer_MonoTakesFirstChannel(t *testing.T) {
	t.Parallel()

	b := audio.Buffer{
		Samples:    []int16{100, 900, -100, -900, 5, 7},
		SampleRate: testRate,
		Channels:   2,
	}
	got := b.Mono()
	if got.Channels != 1 {
		t.Fatalf("Channels = %d, want 1", got.Channels)
	}
	if want := []int16{100, -100, 5}; !slices.Equal(got.Samples, want) {
		t.Errorf("Samples = %v, want %v", got.Samples, want)
	}
}

func TestBuffer_MonoPassthrough(t *testing.T) {
	t.Parallel()

	b := monoBuffer([]int16{1, 2, 3})
	if got := b.Mono(); !slices.Equal(got.Samples, b.Samples) {
		t.Errorf("mono buffer changed: %v", got.Samples)
	}
}

func TestBuffer_PeakAndLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		samples []int16
		peak    int
		level   float64
	}{
		{"empty", nil, 0, 0},
		{"positive", []int16{10, 16384, -20}, 16384, 0.5},
		{"negative extreme", []int16{-32768, 1}, 32768, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := monoBuffer(tt.samples)
			if got := b.Peak(); got != tt.peak {
				t.Errorf("Peak() = %d, want %d", got, tt.peak)
			}
			if got := b.Level(); got != tt.level {
				t.Errorf("Level() = %v, want %v", got, tt.level)
			}
		})
	}
}

func TestBuffer_Duration(t *testing.T) {
	t.Parallel()

	b := audio.Silence(testRate*3/2, testRate)
	if got := b.Duration(); got != 1500*time.Millisecond {
		t.Errorf("Duration() = %v, want 1.5s", got)
	}
	if got := (audio.Buffer{Samples: make([]int16, 10)}).Duration(); got != 0 {
		t.Errorf("Duration() without rate = %v, want 0", got)
	}
}

func TestPCMConversion(t *testing.T) {
	t.Parallel()

	in := []int16{0, 1, -1, 32767, -32768}
	pcm := audio.SamplesToPCM(in)
	if len(pcm) != 10 {
		t.Fatalf("len(pcm) = %d, want 10", len(pcm))
	}
	if pcm[2] != 0x01 || pcm[3] != 0x00 {
		t.Errorf("sample 1 not little-endian: % x", pcm[2:4])
	}
	if got := audio.PCMToSamples(append(pcm, 0xff)); !slices.Equal(got, in) {
		t.Errorf("PCMToSamples = %v, want %v", got, in)
	}
}

func TestClampInt16(t *testing.T) {
	t.Parallel()

	tests := map[float64]int16{
		0:       0,
		1.9:     1,
		-1.9:    -1,
		40000:   32767,
		-40000:  -32768,
		32767.5: 32767,
	}
	for in, want := range tests {
		if got := audio.ClampInt16(in); got != want {
			t.Errorf("ClampInt16(%v) = %d, want %d", in, got, want)
		}
	}
}
