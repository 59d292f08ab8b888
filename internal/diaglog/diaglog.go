// Package diaglog provides structured NDJSON diagnostic logging for echotrim.
// Activated by ECHOTRIM_DEBUG=true. When the env var is absent, all Log calls
// are no-ops and no file is created.
package diaglog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Component labels.

const (
	ComponentTranscoder = "transcoder"
	ComponentTrimmer    = "trim-orchestrator"
	ComponentScheduler  = "compression-scheduler"
	ComponentAnalyzer   = "waveform-analyzer"
	ComponentCore       = "echotrim-core"
	ComponentDiagExport = "diag-export"
)

// Event names.

const (
	EventTranscodeStart  = "transcode_start"
	EventTranscodeDone   = "transcode_done"
	EventTranscodeFailed = "transcode_failed"
	EventTrimStart       = "trim_start"
	EventTrimApplied     = "trim_applied"
	EventTrimSkipped     = "trim_skipped"
	EventTrimFailed      = "trim_failed"
	EventCompressStart   = "compress_job_start"
	EventCompressDone    = "compress_job_done"
	EventCompressFailed  = "compress_job_failed"
	EventSchedulerWake   = "scheduler_wake"
	EventSchedulerStop   = "scheduler_stop"
	EventAnalysisDone    = "analysis_done"
)

// LogEntry is one structured event record written as a single JSON line.
type LogEntry struct {
	Timestamp string      `json:"ts"` // RFC3339Nano
	Component string      `json:"component"`
	Event     string      `json:"event"`
	Recording string      `json:"recording,omitempty"` // recording id or directory
	Reason    string      `json:"reason,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Logger writes LogEntry values to a rolling NDJSON file. When debug mode is
// disabled every Log call is a no-op.
type Logger struct {
	w       *capWriter
	mu      sync.Mutex
	enabled bool
}

// New opens (or creates) the NDJSON log file at path. If debug mode is
// disabled, path is ignored and a no-op logger is returned.
func New(path string) (*Logger, error) {
	if !IsDebugEnabled() {
		return &Logger{enabled: false}, nil
	}
	w, err := openCapWriter(path, 10*1024*1024)
	if err != nil {
		return nil, err
	}
	return &Logger{w: w, enabled: true}, nil
}

// Log serialises entry to JSON, appends a newline, and writes to the rolling
// file.
func (l *Logger) Log(entry LogEntry) {
	if l == nil || !l.enabled {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.w.Write(data)
}

// Close flushes and closes the underlying file. Safe on nil/disabled logger.
func (l *Logger) Close() error {
	if l == nil || !l.enabled || l.w == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.close()
}

// IsDebugEnabled reports whether ECHOTRIM_DEBUG is set to "true".
func IsDebugEnabled() bool {
	return os.Getenv("ECHOTRIM_DEBUG") == "true"
}

// NewNoOp returns a logger where every Log call is a no-op. Use as a safe
// fallback when New fails (e.g., disk full, permissions error).
func NewNoOp() *Logger {
	return &Logger{enabled: false}
}
