// Package audio decodes linear-PCM WAV recordings and produces the waveform
// and silence analysis behind the trim editor.
package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// ErrUnsupportedFormat is returned for non-PCM containers and bit depths the
// decoder does not handle.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

const wavFormatPCM = 1

// StreamInfo describes a decoded PCM stream.
type StreamInfo struct {
	SampleRate int // Hz
	Channels   int
	BitDepth   int // 16, 24 or 32
	Frames     int // frames per channel
}

// Duration returns the stream length in seconds.
func (s StreamInfo) Duration() float64 {
	if s.SampleRate == 0 {
		return 0
	}
	return float64(s.Frames) / float64(s.SampleRate)
}

// FullScale returns the positive full-scale sample value for a supported bit
// depth, used to normalise samples to [-1, 1].
func FullScale(bitDepth int) float64 {
	switch bitDepth {
	case 16:
		return 32767
	case 24:
		return 8388607
	case 32:
		return 2147483647
	}
	return 0
}

// Decode reads a linear-PCM WAV file and returns its stream info along with
// the raw interleaved samples. Compressed containers and unexpected bit
// depths fail with ErrUnsupportedFormat; a valid file with no audio frames
// decodes to an empty sample slice.
func Decode(path string) (*StreamInfo, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, nil, fmt.Errorf("%s: not a RIFF/WAVE file: %w", path, ErrUnsupportedFormat)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, nil, fmt.Errorf("%s: codec %d is not linear PCM: %w", path, dec.WavAudioFormat, ErrUnsupportedFormat)
	}

	bitDepth := int(dec.BitDepth)
	if FullScale(bitDepth) == 0 {
		return nil, nil, fmt.Errorf("%s: %d-bit samples: %w", path, bitDepth, ErrUnsupportedFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}

	channels := int(dec.NumChans)
	if channels < 1 {
		return nil, nil, fmt.Errorf("%s: no channels: %w", path, ErrUnsupportedFormat)
	}

	info := &StreamInfo{
		SampleRate: int(dec.SampleRate),
		Channels:   channels,
		BitDepth:   bitDepth,
		Frames:     len(buf.Data) / channels,
	}
	return info, buf.Data, nil
}
