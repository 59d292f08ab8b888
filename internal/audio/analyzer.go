package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Analysis defaults. Arbitrary but serviceable for speech recordings; all
// three are overridable through Options.
const (
	DefaultBuckets          = 800
	DefaultSilenceThreshold = 0.01 // fraction of full scale
	DefaultMinSilence       = 2.0  // seconds
)

// Mixdown selects how multi-channel frames collapse to a single amplitude.
type Mixdown int

const (
	// MixPeak takes the maximum absolute value across channels, so a loud
	// channel is never under-represented. The default.
	MixPeak Mixdown = iota
	// MixRMS takes the root mean square across channels. Softer silence
	// boundaries on panned or asymmetric stereo content.
	MixRMS
)

// Options configures an analysis pass. Zero values fall back to defaults.
type Options struct {
	Buckets          int
	SilenceThreshold float64
	MinSilence       float64
	Mixdown          Mixdown
}

func (o Options) withDefaults() Options {
	if o.Buckets <= 0 {
		o.Buckets = DefaultBuckets
	}
	if o.SilenceThreshold <= 0 {
		o.SilenceThreshold = DefaultSilenceThreshold
	}
	if o.MinSilence <= 0 {
		o.MinSilence = DefaultMinSilence
	}
	return o
}

// SilentRegion is a detected stretch of audio below the silence threshold.
type SilentRegion struct {
	Start float64 // seconds
	End   float64 // seconds
}

// Duration returns the region length in seconds.
func (r SilentRegion) Duration() float64 {
	return r.End - r.Start
}

// Analysis is an immutable snapshot of one analysis pass. It becomes stale
// when the underlying file changes (e.g. after a trim) and must then be
// discarded, never patched.
type Analysis struct {
	Duration      float64
	Info          StreamInfo
	Waveform      []float64 // peak amplitude per bucket, in [0, 1]
	SilentRegions []SilentRegion
}

// Analyze decodes a linear-PCM WAV file and computes its waveform summary
// and silent regions. A valid file with zero frames yields a zero-duration
// Analysis with empty collections.
func Analyze(path string, opts Options) (*Analysis, error) {
	info, samples, err := Decode(path)
	if err != nil {
		return nil, err
	}
	return analyze(info, samples, opts.withDefaults()), nil
}

// WAVMaterializer decodes a non-PCM container to a linear-PCM WAV file. The
// transcoder gateway satisfies this.
type WAVMaterializer interface {
	DecodeToWAV(ctx context.Context, input, output string) error
}

// AnalyzeFile analyzes a WAV or lossless-archive (FLAC) file. FLAC input is
// materialized to a temporary WAV through m first; the temporary file is
// removed before returning on every path.
func AnalyzeFile(ctx context.Context, path string, m WAVMaterializer, opts Options) (*Analysis, error) {
	if !strings.EqualFold(filepath.Ext(path), ".flac") {
		return Analyze(path, opts)
	}
	if m == nil {
		return nil, fmt.Errorf("analyze %s: no decoder available for FLAC input", path)
	}

	tmp := strings.TrimSuffix(path, filepath.Ext(path)) + ".tmp_analysis.wav"
	if err := m.DecodeToWAV(ctx, path, tmp); err != nil {
		return nil, fmt.Errorf("materialize %s for analysis: %w", path, err)
	}
	defer os.Remove(tmp)

	return Analyze(tmp, opts)
}

func analyze(info *StreamInfo, samples []int, opts Options) *Analysis {
	a := &Analysis{Info: *info}
	if info.Frames == 0 {
		return a
	}
	a.Duration = info.Duration()

	amps := frameAmplitudes(info, samples, opts.Mixdown)
	a.Waveform = bucketPeaks(amps, opts.Buckets)
	a.SilentRegions = detectSilence(amps, info.SampleRate, opts.SilenceThreshold, opts.MinSilence)
	return a
}

// frameAmplitudes normalises interleaved samples to [0, 1] amplitudes, one
// value per frame.
func frameAmplitudes(info *StreamInfo, samples []int, mode Mixdown) []float64 {
	scale := FullScale(info.BitDepth)
	amps := make([]float64, 0, info.Frames)

	if info.Channels == 1 {
		for _, s := range samples {
			amps = append(amps, math.Abs(float64(s))/scale)
		}
		return amps
	}

	for i := 0; i+info.Channels <= len(samples); i += info.Channels {
		var amp float64
		switch mode {
		case MixRMS:
			var sum float64
			for _, s := range samples[i : i+info.Channels] {
				v := float64(s) / scale
				sum += v * v
			}
			amp = math.Sqrt(sum / float64(info.Channels))
		default:
			for _, s := range samples[i : i+info.Channels] {
				if v := math.Abs(float64(s)) / scale; v > amp {
					amp = v
				}
			}
		}
		amps = append(amps, amp)
	}
	return amps
}

// bucketPeaks downsamples amplitudes into at most n buckets, keeping the
// peak of each bucket. Peak-hold rather than averaging, so short transients
// stay visible at display resolution.
func bucketPeaks(amps []float64, n int) []float64 {
	if len(amps) == 0 {
		return nil
	}
	perBucket := len(amps) / n
	if perBucket < 1 {
		perBucket = 1
	}

	waveform := make([]float64, 0, n)
	for i := 0; i < len(amps); i += perBucket {
		end := i + perBucket
		if end > len(amps) {
			end = len(amps)
		}
		peak := 0.0
		for _, v := range amps[i:end] {
			if v > peak {
				peak = v
			}
		}
		waveform = append(waveform, peak)
	}

	// A trailing partial bucket can push the count past n; truncate.
	if len(waveform) > n {
		waveform = waveform[:n]
	}
	return waveform
}

// detectSilence scans for maximal runs of amplitude below threshold and
// reports those lasting at least minSeconds, including a run that extends to
// end of file.
func detectSilence(amps []float64, sampleRate int, threshold, minSeconds float64) []SilentRegion {
	var regions []SilentRegion
	rate := float64(sampleRate)
	start := -1

	flush := func(end int) {
		if start < 0 {
			return
		}
		if float64(end-start)/rate >= minSeconds {
			regions = append(regions, SilentRegion{
				Start: float64(start) / rate,
				End:   float64(end) / rate,
			})
		}
		start = -1
	}

	for i, amp := range amps {
		if amp < threshold {
			if start < 0 {
				start = i
			}
		} else {
			flush(i)
		}
	}
	flush(len(amps))

	return regions
}
