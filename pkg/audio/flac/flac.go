// Package flac writes captured speech chunks as lossless 16-bit FLAC files.
//
// Frames are stored as verbatim subframes. The chunks are short and already
// silence-trimmed, so the encoder favours simplicity over compression ratio.
package flac

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	mflac "github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"

	"github.com/MrWong99/daymind/pkg/audio"
)

const (
	// BlockSize is the number of samples per FLAC frame.
	BlockSize = 4096

	bitsPerSample = 16
)

// Extension is the file suffix used for chunk files.
const Extension = ".flac"

// Encode writes b as a mono 16-bit FLAC stream to w. Multi-channel buffers are
// reduced to their first channel.
func Encode(w io.Writer, b audio.Buffer) error {
	if b.SampleRate <= 0 {
		return fmt.Errorf("flac: invalid sample rate %d", b.SampleRate)
	}
	mono := b.Mono()
	if len(mono.Samples) == 0 {
		return errors.New("flac: empty buffer")
	}

	info := &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    uint32(mono.SampleRate),
		NChannels:     1,
		BitsPerSample: bitsPerSample,
		NSamples:      uint64(len(mono.Samples)),
	}
	if len(mono.Samples) < BlockSize {
		info.BlockSizeMin = uint16(max(16, len(mono.Samples)))
		info.BlockSizeMax = info.BlockSizeMin
	}

	enc, err := mflac.NewEncoder(w, info)
	if err != nil {
		return fmt.Errorf("flac: create encoder: %w", err)
	}

	var num uint64
	for start := 0; start < len(mono.Samples); start += BlockSize {
		end := min(start+BlockSize, len(mono.Samples))
		if err := enc.WriteFrame(newFrame(mono.Samples[start:end], mono.SampleRate, num)); err != nil {
			_ = enc.Close()
			return fmt.Errorf("flac: write frame %d: %w", num, err)
		}
		num++
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("flac: close encoder: %w", err)
	}
	return nil
}

// WriteFile encodes b into a new file at path. The file is written to a
// temporary sibling first and renamed into place, so a crash never leaves a
// truncated chunk behind.
func WriteFile(path string, b audio.Buffer) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("flac: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("flac: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	bw := bufio.NewWriter(tmp)
	if err := Encode(bw, b); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flac: flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("flac: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("flac: rename: %w", err)
	}
	return nil
}

// newFrame builds a verbatim mono frame for one block of samples.
func newFrame(block []int16, sampleRate int, num uint64) *frame.Frame {
	samples := make([]int32, len(block))
	for i, s := range block {
		samples[i] = int32(s)
	}
	return &frame.Frame{
		Header: frame.Header{
			HasFixedBlockSize: true,
			BlockSize:         uint16(len(block)),
			SampleRate:        uint32(sampleRate),
			Channels:          frame.ChannelsMono,
			BitsPerSample:     bitsPerSample,
			Num:               num,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   samples,
			NSamples:  len(samples),
		}},
	}
}
