// Package transcoder wraps an external ffmpeg binary behind a small gateway
// used for compression, trimming, mixdown synthesis, and decode-to-WAV.
package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mkarlsen/echotrim/internal/diaglog"
	"github.com/mkarlsen/echotrim/internal/fileutil"
)

// DefaultTimeout bounds one process invocation. Long enough for a multi-hour
// recording on slow disks, short enough that a hung process does not wedge
// the caller forever.
const DefaultTimeout = 5 * time.Minute

// ErrNoRegions is returned when a trim is requested with an empty span list.
var ErrNoRegions = errors.New("transcoder: no regions to keep")

// TranscodeError carries the diagnostic text of a failed process invocation.
type TranscodeError struct {
	Op     string
	Input  string
	Output string // captured process stdout+stderr
	Err    error
}

func (e *TranscodeError) Error() string {
	msg := fmt.Sprintf("transcoder: %s %s: %v", e.Op, e.Input, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

// Runner executes one external command and returns its combined output.
// Swapped for a fake in tests.
type Runner interface {
	CombinedOutput(ctx context.Context, name string, args []string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) CombinedOutput(ctx context.Context, name string, args []string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Gateway invokes the transcoder binary. All operations are synchronous and
// bounded by the configured timeout.
type Gateway struct {
	binPath string
	timeout time.Duration
	runner  Runner
	dlog    *diaglog.Logger
	countOp func(op string)
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRunner sets the command runner.
func WithRunner(r Runner) Option {
	return func(g *Gateway) { g.runner = r }
}

// WithTimeout sets the per-invocation wall-clock timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

// WithDiagLogger sets the diagnostic logger.
func WithDiagLogger(l *diaglog.Logger) Option {
	return func(g *Gateway) { g.dlog = l }
}

// WithInvocationCounter registers a callback invoked once per process run,
// keyed by operation name. Skipped operations (target already present) are
// not counted.
func WithInvocationCounter(fn func(op string)) Option {
	return func(g *Gateway) { g.countOp = fn }
}

// New creates a Gateway driving the binary at binPath ("ffmpeg" if empty).
func New(binPath string, opts ...Option) *Gateway {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	g := &Gateway{
		binPath: binPath,
		timeout: DefaultTimeout,
		runner:  execRunner{},
		dlog:    diaglog.NewNoOp(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Transcode re-encodes input to the target format next to it, returning the
// compressed path. If the target already exists it is returned as-is without
// invoking the transcoder.
func (g *Gateway) Transcode(ctx context.Context, input string, format Format) (string, error) {
	target := fileutil.ReplaceExt(input, format.Ext())
	if fileutil.Exists(target) {
		return target, nil
	}

	g.dlog.Log(diaglog.LogEntry{
		Component: diaglog.ComponentTranscoder,
		Event:     diaglog.EventTranscodeStart,
		Payload:   map[string]interface{}{"input": input, "format": string(format)},
	})

	tmp := target + "." + uuid.New().String()[:8] + ".part"
	req := request{op: opEncode, inputs: []string{input}, output: tmp, format: format}
	if err := g.invoke(ctx, "encode", input, req); err != nil {
		g.dlog.Log(diaglog.LogEntry{
			Component: diaglog.ComponentTranscoder,
			Event:     diaglog.EventTranscodeFailed,
			Reason:    err.Error(),
		})
		return "", err
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("promote %s: %w", target, err)
	}

	g.dlog.Log(diaglog.LogEntry{
		Component: diaglog.ComponentTranscoder,
		Event:     diaglog.EventTranscodeDone,
		Payload:   compressionStats(input, target),
	})
	return target, nil
}

// Trim writes the concatenation of the given spans of input to output.
// A single span uses a stream copy; multiple spans are re-timestamped and
// concatenated. The caller owns promotion of output to its final path.
func (g *Gateway) Trim(ctx context.Context, input, output string, spans []Span) error {
	switch len(spans) {
	case 0:
		return ErrNoRegions
	case 1:
		return g.TrimSingle(ctx, input, output, spans[0])
	default:
		return g.TrimConcat(ctx, input, output, spans)
	}
}

// TrimSingle extracts one contiguous span of input to output.
func (g *Gateway) TrimSingle(ctx context.Context, input, output string, span Span) error {
	req := request{op: opTrimSingle, inputs: []string{input}, output: output, spans: []Span{span}}
	return g.invoke(ctx, "trim", input, req)
}

// TrimConcat extracts the given spans of input, re-timestamps each to start
// at zero, and concatenates them in order to output.
func (g *Gateway) TrimConcat(ctx context.Context, input, output string, spans []Span) error {
	if len(spans) == 0 {
		return ErrNoRegions
	}
	req := request{op: opTrimConcat, inputs: []string{input}, output: output, spans: spans}
	return g.invoke(ctx, "trim-concat", input, req)
}

// DecodeToWAV materializes a compressed container as 16-bit linear PCM.
func (g *Gateway) DecodeToWAV(ctx context.Context, input, output string) error {
	req := request{op: opDecodePCM, inputs: []string{input}, output: output}
	return g.invoke(ctx, "decode", input, req)
}

// MixToStereo merges two mono inputs into one stereo file, left input on the
// left channel.
func (g *Gateway) MixToStereo(ctx context.Context, left, right, output string) error {
	req := request{op: opMixStereo, inputs: []string{left, right}, output: output}
	return g.invoke(ctx, "mix", left, req)
}

// invoke runs one request and verifies the output file is present and
// non-empty. On any failure the partial output is removed.
func (g *Gateway) invoke(ctx context.Context, op, input string, req request) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if g.countOp != nil {
		g.countOp(op)
	}
	out, err := g.runner.CombinedOutput(ctx, g.binPath, req.args())
	if err != nil {
		_ = os.Remove(req.output)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &TranscodeError{Op: op, Input: input, Output: string(out),
				Err: fmt.Errorf("timed out after %s", g.timeout)}
		}
		return &TranscodeError{Op: op, Input: input, Output: string(out), Err: err}
	}

	// A zero exit with no usable output is still a failure.
	info, statErr := os.Stat(req.output)
	if statErr != nil || info.Size() == 0 {
		_ = os.Remove(req.output)
		return &TranscodeError{Op: op, Input: input, Output: string(out),
			Err: errors.New("process reported success but produced no output")}
	}
	return nil
}

func compressionStats(input, output string) map[string]interface{} {
	stats := map[string]interface{}{"input": input, "output": output}
	in, err1 := os.Stat(input)
	out, err2 := os.Stat(output)
	if err1 == nil && err2 == nil && in.Size() > 0 {
		stats["original_bytes"] = in.Size()
		stats["compressed_bytes"] = out.Size()
		stats["reduction_pct"] = (1 - float64(out.Size())/float64(in.Size())) * 100
	}
	return stats
}
