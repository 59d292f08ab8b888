package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeWAVFile writes a PCM WAV file with the given interleaved samples.
func writeWAVFile(path string, sampleRate, bitDepth, channels int, samples []int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

func writeWAV(t *testing.T, path string, sampleRate, bitDepth, channels int, samples []int) {
	t.Helper()
	if err := writeWAVFile(path, sampleRate, bitDepth, channels, samples); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// silenceToneSilence generates mono 16-bit samples: silence, then a sine
// tone at toneHz, then silence again.
func silenceToneSilence(sampleRate int, silence1, tone, silence2 float64, toneHz float64) []int {
	n1 := int(silence1 * float64(sampleRate))
	n2 := int(tone * float64(sampleRate))
	n3 := int(silence2 * float64(sampleRate))

	samples := make([]int, 0, n1+n2+n3)
	for i := 0; i < n1; i++ {
		samples = append(samples, 0)
	}
	for i := 0; i < n2; i++ {
		v := 0.5 * math.Sin(2*math.Pi*toneHz*float64(i)/float64(sampleRate))
		samples = append(samples, int(v*32767))
	}
	for i := 0; i < n3; i++ {
		samples = append(samples, 0)
	}
	return samples
}

// tempWAV writes samples to a fresh file under t.TempDir and returns its path.
func tempWAV(t *testing.T, name string, sampleRate, bitDepth, channels int, samples []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	writeWAV(t, path, sampleRate, bitDepth, channels, samples)
	return path
}
