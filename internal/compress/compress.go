// Package compress converts recorded WAV artifacts to a compressed format
// and synthesizes the mixed stereo track, on demand or from the background
// scheduler.
package compress

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mkarlsen/echotrim/internal/diaglog"
	"github.com/mkarlsen/echotrim/internal/fileutil"
	"github.com/mkarlsen/echotrim/internal/transcoder"
)

// Transcoder is the gateway surface the compressor depends on.
type Transcoder interface {
	Transcode(ctx context.Context, input string, format transcoder.Format) (string, error)
	MixToStereo(ctx context.Context, left, right, output string) error
}

// FileResult is the outcome of compressing one artifact.
type FileResult struct {
	Name string // artifact filename
	Path string // compressed path on success
	Err  error
}

// Compressor compresses recording artifacts non-destructively by default.
type Compressor struct {
	tc              Transcoder
	format          transcoder.Format
	deleteOriginals bool
	dlog            *diaglog.Logger
}

// Option configures a Compressor.
type Option func(*Compressor)

// WithFormat sets the target format (default FLAC).
func WithFormat(f transcoder.Format) Option {
	return func(c *Compressor) { c.format = f }
}

// WithDeleteOriginals removes the WAV after a successful compression.
func WithDeleteOriginals(del bool) Option {
	return func(c *Compressor) { c.deleteOriginals = del }
}

// WithDiagLogger sets the diagnostic logger.
func WithDiagLogger(l *diaglog.Logger) Option {
	return func(c *Compressor) { c.dlog = l }
}

// New creates a Compressor over the given transcoder.
func New(tc Transcoder, opts ...Option) *Compressor {
	c := &Compressor{
		tc:     tc,
		format: transcoder.FormatFLAC,
		dlog:   diaglog.NewNoOp(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Format returns the configured target format.
func (c *Compressor) Format() transcoder.Format {
	return c.format
}

// CompressFile compresses one WAV file, returning the compressed path. When
// the compressed counterpart already exists, it is returned without invoking
// the transcoder.
func (c *Compressor) CompressFile(ctx context.Context, wavPath string) (string, error) {
	if !fileutil.Exists(wavPath) {
		return "", fmt.Errorf("compress %s: %w", wavPath, os.ErrNotExist)
	}
	target := fileutil.ReplaceExt(wavPath, c.format.Ext())
	if fileutil.Exists(target) {
		return target, nil
	}

	out, err := c.tc.Transcode(ctx, wavPath, c.format)
	if err != nil {
		return "", err
	}
	if c.deleteOriginals {
		_ = os.Remove(wavPath)
	}
	return out, nil
}

// CompressRecording compresses every present WAV artifact in dir. One file's
// failure does not stop the rest.
func (c *Compressor) CompressRecording(ctx context.Context, dir string) []FileResult {
	var results []FileResult
	for _, name := range fileutil.WAVArtifacts() {
		wavPath := filepath.Join(dir, name)
		if !fileutil.Exists(wavPath) {
			continue
		}
		path, err := c.CompressFile(ctx, wavPath)
		results = append(results, FileResult{Name: name, Path: path, Err: err})
	}
	return results
}

// EnsureMixdown synthesizes the mixed stereo artifact from the microphone
// and system channels when it is missing and both sources are present.
// Returns the mixdown path and whether it was created by this call.
func (c *Compressor) EnsureMixdown(ctx context.Context, dir string) (string, bool, error) {
	mixed := filepath.Join(dir, fileutil.MixedWAV)
	if fileutil.Exists(mixed) {
		return mixed, false, nil
	}

	mic := filepath.Join(dir, fileutil.MicrophoneWAV)
	sys := filepath.Join(dir, fileutil.SystemWAV)
	if !fileutil.Exists(mic) || !fileutil.Exists(sys) {
		return "", false, nil
	}

	tmp := mixed + ".part"
	if err := c.tc.MixToStereo(ctx, mic, sys, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", false, err
	}
	if err := os.Rename(tmp, mixed); err != nil {
		_ = os.Remove(tmp)
		return "", false, fmt.Errorf("promote mixdown %s: %w", mixed, err)
	}

	c.dlog.Log(diaglog.LogEntry{
		Component: diaglog.ComponentScheduler,
		Event:     diaglog.EventCompressStart,
		Recording: dir,
		Payload:   map[string]interface{}{"mixdown": mixed},
	})
	return mixed, true, nil
}

// CompressedCount returns how many results succeeded.
func CompressedCount(results []FileResult) int {
	n := 0
	for _, r := range results {
		if r.Err == nil {
			n++
		}
	}
	return n
}
