// Package trimmer applies keep-regions to every audio artifact of a
// recording directory, with crash-safe backups and per-file fault isolation.
package trimmer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mkarlsen/echotrim/internal/diaglog"
	"github.com/mkarlsen/echotrim/internal/fileutil"
	"github.com/mkarlsen/echotrim/internal/regions"
	"github.com/mkarlsen/echotrim/internal/transcoder"
)

// Gateway is the transcoder operation the orchestrator depends on.
type Gateway interface {
	Trim(ctx context.Context, input, output string, spans []transcoder.Span) error
}

// Result reports the outcome for one artifact.
type Result struct {
	File    string // artifact filename relative to the recording directory
	Trimmed bool
	Err     error
}

// Trimmer drives the Gateway across all artifacts of a recording.
type Trimmer struct {
	gw            Gateway
	dlog          *diaglog.Logger
	compressedExt string
}

// Option configures a Trimmer.
type Option func(*Trimmer)

// WithDiagLogger sets the diagnostic logger.
func WithDiagLogger(l *diaglog.Logger) Option {
	return func(t *Trimmer) { t.dlog = l }
}

// WithCompressedExt sets the compressed artifact extension (default ".flac").
func WithCompressedExt(ext string) Option {
	return func(t *Trimmer) { t.compressedExt = ext }
}

// New creates a Trimmer over the given gateway.
func New(gw Gateway, opts ...Option) *Trimmer {
	t := &Trimmer{
		gw:            gw,
		dlog:          diaglog.NewNoOp(),
		compressedExt: ".flac",
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TrimRecording trims every present artifact in dir to the given keep-regions.
// Each artifact is first backed up (unless backup is false or a backup already
// exists from an earlier attempt), then trimmed to a temporary file which
// atomically replaces the original on success. One artifact's failure never
// blocks the others. Returns true when at least one artifact was trimmed.
func (t *Trimmer) TrimRecording(ctx context.Context, dir string, keeps []regions.KeepRegion, backup bool) (bool, []Result, error) {
	if len(keeps) == 0 {
		return false, nil, fmt.Errorf("trim %s: %w: no regions to keep", dir, regions.ErrInvalidTrim)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return false, nil, fmt.Errorf("recording directory %s: %w", dir, os.ErrNotExist)
	}

	spans := spansFromKeeps(keeps)
	t.dlog.Log(diaglog.LogEntry{
		Component: diaglog.ComponentTrimmer,
		Event:     diaglog.EventTrimStart,
		Recording: dir,
		Payload:   map[string]interface{}{"regions": len(spans)},
	})

	var results []Result
	trimmedAny := false
	for _, name := range fileutil.AllArtifacts(t.compressedExt) {
		path := filepath.Join(dir, name)
		if !fileutil.Exists(path) {
			continue
		}

		res := Result{File: name}
		if err := t.trimOne(ctx, path, spans, backup); err != nil {
			res.Err = err
			t.dlog.Log(diaglog.LogEntry{
				Component: diaglog.ComponentTrimmer,
				Event:     diaglog.EventTrimFailed,
				Recording: dir,
				Reason:    err.Error(),
				Payload:   map[string]interface{}{"file": name},
			})
		} else {
			res.Trimmed = true
			trimmedAny = true
			t.dlog.Log(diaglog.LogEntry{
				Component: diaglog.ComponentTrimmer,
				Event:     diaglog.EventTrimApplied,
				Recording: dir,
				Payload:   map[string]interface{}{"file": name},
			})
		}
		results = append(results, res)
	}

	return trimmedAny, results, nil
}

// trimOne backs up, trims to a temporary path, and atomically promotes. On
// failure the temporary file is removed and the original stays untouched.
func (t *Trimmer) trimOne(ctx context.Context, path string, spans []transcoder.Span, backup bool) error {
	if backup {
		backupPath := fileutil.BackupPath(path)
		// An existing backup from an earlier trim attempt is kept; it is
		// the true pre-trim original.
		if !fileutil.Exists(backupPath) {
			if err := fileutil.CopyFile(path, backupPath); err != nil {
				return fmt.Errorf("backup %s: %w", path, err)
			}
		}
	}

	tmp := fileutil.TrimmingPath(path)
	if err := t.gw.Trim(ctx, path, tmp, spans); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("promote trimmed %s: %w", path, err)
	}
	return nil
}

func spansFromKeeps(keeps []regions.KeepRegion) []transcoder.Span {
	spans := make([]transcoder.Span, len(keeps))
	for i, k := range keeps {
		spans[i] = transcoder.Span{Start: k.Start, End: k.End}
	}
	return spans
}
