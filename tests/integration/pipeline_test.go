// Integration coverage for the analyze -> region -> trim -> compress pipeline
// using a fake process runner in place of the ffmpeg binary.
package integration

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/mkarlsen/echotrim/internal/audio"
	"github.com/mkarlsen/echotrim/internal/compress"
	"github.com/mkarlsen/echotrim/internal/fileutil"
	"github.com/mkarlsen/echotrim/internal/regions"
	"github.com/mkarlsen/echotrim/internal/transcoder"
	"github.com/mkarlsen/echotrim/internal/trimmer"
	"github.com/mkarlsen/echotrim/testutil"
)

// fakeRunner stands in for the ffmpeg binary: it writes a marker payload to
// the output path (the last argument) and records every invocation.
type fakeRunner struct {
	calls [][]string
}

func (f *fakeRunner) CombinedOutput(_ context.Context, name string, args []string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return nil, os.WriteFile(args[len(args)-1], []byte("transcoded"), 0644)
}

func writeToneWAV(t *testing.T, path string, silence1, tone, silence2 float64) {
	t.Helper()
	const rate = 8000
	n1, n2, n3 := int(silence1*rate), int(tone*rate), int(silence2*rate)

	samples := make([]int, 0, n1+n2+n3)
	for i := 0; i < n1; i++ {
		samples = append(samples, 0)
	}
	for i := 0; i < n2; i++ {
		v := 0.5 * math.Sin(2*math.Pi*1000*float64(i)/rate)
		samples = append(samples, int(v*32767))
	}
	for i := 0; i < n3; i++ {
		samples = append(samples, 0)
	}

	f, err := os.Create(path)
	testutil.AssertNoError(t, err, "create wav")
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	testutil.AssertNoError(t, enc.Write(buf), "encode wav")
	testutil.AssertNoError(t, enc.Close(), "close encoder")
}

func TestAnalyzeTrimCompressPipeline(t *testing.T) {
	dir := t.TempDir()
	micPath := filepath.Join(dir, fileutil.MicrophoneWAV)
	writeToneWAV(t, micPath, 3.5, 2.0, 2.5)

	// Analyze the recording and derive cut markers from its silent regions.
	analysis, err := audio.Analyze(micPath, audio.Options{})
	testutil.AssertNoError(t, err, "analyze")
	testutil.AssertInDelta(t, 8.0, analysis.Duration, 0.01, "duration")
	testutil.AssertEqual(t, 2, len(analysis.SilentRegions), "silent region count")

	var cuts []regions.CutMarker
	for _, sr := range analysis.SilentRegions {
		cuts = append(cuts, regions.CutMarker{Start: sr.Start, End: sr.End})
	}
	keeps, err := regions.ComputeKeepRegions(analysis.Duration, cuts, regions.DefaultMinPlayable)
	testutil.AssertNoError(t, err, "compute keep regions")
	testutil.AssertEqual(t, 1, len(keeps), "keep region count")
	testutil.AssertInDelta(t, 2.0, regions.TrimmedDuration(keeps), 0.05, "trimmed duration")

	// Trim through the gateway with the fake runner behind it.
	runner := &fakeRunner{}
	gw := transcoder.New("ffmpeg", transcoder.WithRunner(runner))

	original, err := os.ReadFile(micPath)
	testutil.AssertNoError(t, err, "read original")

	trimmed, results, err := trimmer.New(gw).TrimRecording(context.Background(), dir, keeps, true)
	testutil.AssertNoError(t, err, "trim recording")
	testutil.AssertTrue(t, trimmed, "at least one artifact trimmed")
	testutil.AssertEqual(t, 1, len(results), "trim result count")

	backup, err := os.ReadFile(fileutil.BackupPath(micPath))
	testutil.AssertNoError(t, err, "read backup")
	testutil.AssertEqual(t, len(original), len(backup), "backup matches original size")

	replaced, err := os.ReadFile(micPath)
	testutil.AssertNoError(t, err, "read trimmed")
	testutil.AssertEqual(t, "transcoded", string(replaced), "artifact replaced by trim output")

	// A stale analysis must be discarded after the trim; compress the result.
	comp := compress.New(gw)
	compressed, err := comp.CompressFile(context.Background(), micPath)
	testutil.AssertNoError(t, err, "compress")
	testutil.AssertEqual(t, filepath.Join(dir, "microphone.flac"), compressed, "compressed path")
	testutil.AssertTrue(t, fileutil.Exists(compressed), "compressed file on disk")

	// Second compression is a no-op that must not reach the runner.
	before := len(runner.calls)
	again, err := comp.CompressFile(context.Background(), micPath)
	testutil.AssertNoError(t, err, "recompress")
	testutil.AssertEqual(t, compressed, again, "recompress returns existing path")
	testutil.AssertEqual(t, before, len(runner.calls), "no extra process invocation")
}

func TestPipelineTrimFailureKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	micPath := filepath.Join(dir, fileutil.MicrophoneWAV)
	writeToneWAV(t, micPath, 1.0, 1.0, 1.0)

	original, err := os.ReadFile(micPath)
	testutil.AssertNoError(t, err, "read original")

	// Runner that reports success but writes nothing: the gateway must treat
	// the missing output as a failure and the trimmer must keep the original.
	gw := transcoder.New("ffmpeg", transcoder.WithRunner(noopRunner{}))
	keeps := []regions.KeepRegion{{Start: 0, End: 1.5}}

	trimmed, results, err := trimmer.New(gw).TrimRecording(context.Background(), dir, keeps, true)
	testutil.AssertNoError(t, err, "trim recording")
	testutil.AssertFalse(t, trimmed, "nothing should be trimmed")
	testutil.AssertEqual(t, 1, len(results), "result count")
	testutil.AssertError(t, results[0].Err, "artifact failure recorded")

	after, err := os.ReadFile(micPath)
	testutil.AssertNoError(t, err, "read after failed trim")
	testutil.AssertEqual(t, string(original), string(after), "original byte-identical")
}

type noopRunner struct{}

func (noopRunner) CombinedOutput(context.Context, string, []string) ([]byte, error) {
	return nil, nil
}
