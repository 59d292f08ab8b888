package transcoder

import (
	"fmt"
	"strings"
)

// Span is one contiguous region of audio in seconds.
type Span struct {
	Start float64
	End   float64
}

// Duration returns the span length in seconds.
func (s Span) Duration() float64 {
	return s.End - s.Start
}

// Format is a target compression codec.
type Format string

const (
	FormatFLAC Format = "flac"
	FormatOpus Format = "opus"
)

// Ext returns the file extension for the format, dot included.
func (f Format) Ext() string {
	return "." + string(f)
}

type opKind int

const (
	opEncode opKind = iota
	opTrimSingle
	opTrimConcat
	opDecodePCM
	opMixStereo
)

// request describes one process invocation. All argument construction lives
// in args so the command line can be inspected without running anything.
type request struct {
	op     opKind
	inputs []string
	output string
	format Format
	spans  []Span
}

func (r request) args() []string {
	args := []string{"-y"}
	for _, in := range r.inputs {
		args = append(args, "-i", in)
	}

	switch r.op {
	case opEncode:
		args = append(args, encodingArgs(r.format)...)
	case opTrimSingle:
		s := r.spans[0]
		args = append(args,
			"-ss", formatSeconds(s.Start),
			"-to", formatSeconds(s.End),
			"-c", "copy")
	case opTrimConcat:
		args = append(args, "-filter_complex", concatFilter(r.spans), "-map", "[out]")
	case opDecodePCM:
		args = append(args, "-c:a", "pcm_s16le")
	case opMixStereo:
		// Two mono inputs become one stereo track, first input on the left.
		args = append(args,
			"-filter_complex", "[0:a][1:a]amerge=inputs=2[a]",
			"-map", "[a]",
			"-ac", "2")
	}

	// The muxer is guessed from the output filename extension when -f is
	// absent. Outputs are staged under .part and .trimming names, which
	// match no muxer, so the container is always stated explicitly.
	return append(args, "-f", r.container(), r.output)
}

func (r request) container() string {
	switch {
	case r.op == opEncode && r.format == FormatOpus:
		return "ogg"
	case r.op == opEncode:
		return "flac"
	default:
		return "wav"
	}
}

func encodingArgs(f Format) []string {
	switch f {
	case FormatOpus:
		return []string{"-c:a", "libopus", "-b:a", "64k"}
	default:
		return []string{"-c:a", "flac", "-compression_level", "8"}
	}
}

// concatFilter builds the filter expression that extracts each span,
// re-timestamps it to start at zero, and concatenates the pieces in order.
func concatFilter(spans []Span) string {
	var parts []string
	var labels strings.Builder
	for i, s := range spans {
		parts = append(parts, fmt.Sprintf("[0:a]atrim=start=%s:end=%s,asetpts=PTS-STARTPTS[a%d]",
			formatSeconds(s.Start), formatSeconds(s.End), i))
		fmt.Fprintf(&labels, "[a%d]", i)
	}
	return strings.Join(parts, ";") +
		fmt.Sprintf(";%sconcat=n=%d:v=0:a=1[out]", labels.String(), len(spans))
}

func formatSeconds(s float64) string {
	return fmt.Sprintf("%.6f", s)
}
