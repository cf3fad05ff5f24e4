// Package portaudio implements [audio.Source] on top of the PortAudio library.
//
// The stream is opened lazily on the first Read and kept open between reads so
// that consecutive capture windows do not pay the device start-up latency. A
// failed read closes the stream; the next Read reopens it.
package portaudio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/daymind/pkg/audio"
)

const defaultFramesPerBuffer = 1024

// Compile-time assertion that Source implements audio.Source.
var _ audio.Source = (*Source)(nil)

// Option configures a [Source].
type Option func(*Source)

// WithDevice selects the input device whose name contains name
// (case-insensitive). The default input device is used when empty or when no
// device matches.
func WithDevice(name string) Option {
	return func(s *Source) {
		s.deviceName = name
	}
}

// WithChannels sets the number of input channels to open. Default: 1.
func WithChannels(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.channels = n
		}
	}
}

// WithFramesPerBuffer sets the PortAudio buffer size. Default: 1024.
func WithFramesPerBuffer(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.framesPerBuffer = n
		}
	}
}

// Source captures 16-bit PCM from a PortAudio input device.
type Source struct {
	sampleRate      int
	channels        int
	framesPerBuffer int
	deviceName      string

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
	closed bool
}

// New initialises PortAudio and returns a Source capturing at sampleRate Hz.
// The device itself is not opened until the first Read.
func New(sampleRate int, opts ...Option) (*Source, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("portaudio: invalid sample rate %d", sampleRate)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	s := &Source{
		sampleRate:      sampleRate,
		channels:        1,
		framesPerBuffer: defaultFramesPerBuffer,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Read blocks until frames sample frames have been captured. Cancelling ctx
// aborts between device buffers.
func (s *Source) Read(ctx context.Context, frames int) (audio.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return audio.Buffer{}, audio.ErrSourceClosed
	}
	if err := s.open(); err != nil {
		return audio.Buffer{}, err
	}

	out := make([]int16, 0, frames*s.channels)
	for len(out) < frames*s.channels {
		if err := ctx.Err(); err != nil {
			return audio.Buffer{}, err
		}
		if err := s.stream.Read(); err != nil {
			s.closeStream()
			return audio.Buffer{}, fmt.Errorf("portaudio: read: %w", err)
		}
		need := frames*s.channels - len(out)
		out = append(out, s.buf[:min(need, len(s.buf))]...)
	}

	return audio.Buffer{Samples: out, SampleRate: s.sampleRate, Channels: s.channels}, nil
}

// Close stops the stream and terminates PortAudio.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.closeStream()
	return portaudio.Terminate()
}

// open starts the input stream if it is not running. Must be called with s.mu
// held.
func (s *Source) open() error {
	if s.stream != nil {
		return nil
	}

	s.buf = make([]int16, s.framesPerBuffer*s.channels)

	var (
		stream *portaudio.Stream
		err    error
	)
	dev := s.findDevice()
	if dev != nil {
		params := portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   dev,
				Channels: s.channels,
				Latency:  dev.DefaultHighInputLatency,
			},
			SampleRate:      float64(s.sampleRate),
			FramesPerBuffer: s.framesPerBuffer,
		}
		stream, err = portaudio.OpenStream(params, s.buf)
	} else {
		stream, err = portaudio.OpenDefaultStream(s.channels, 0, float64(s.sampleRate), s.framesPerBuffer, s.buf)
	}
	if err != nil {
		return fmt.Errorf("portaudio: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("portaudio: start stream: %w", err)
	}

	s.stream = stream
	slog.Info("audio input opened", "device", s.deviceLabel(dev), "sample_rate", s.sampleRate, "channels", s.channels)
	return nil
}

// closeStream stops and releases the current stream. Must be called with
// s.mu held.
func (s *Source) closeStream() {
	if s.stream == nil {
		return
	}
	_ = s.stream.Stop()
	_ = s.stream.Close()
	s.stream = nil
}

// findDevice returns the configured input device, or nil to use the default.
func (s *Source) findDevice() *portaudio.DeviceInfo {
	if s.deviceName == "" {
		return nil
	}
	devices, err := portaudio.Devices()
	if err != nil {
		slog.Warn("portaudio: list devices", "err", err)
		return nil
	}
	want := strings.ToLower(s.deviceName)
	for _, d := range devices {
		if d.MaxInputChannels >= s.channels && strings.Contains(strings.ToLower(d.Name), want) {
			return d
		}
	}
	slog.Warn("portaudio: input device not found, using default", "device", s.deviceName)
	return nil
}

func (s *Source) deviceLabel(dev *portaudio.DeviceInfo) string {
	if dev == nil {
		return "default"
	}
	return dev.Name
}
