package compress

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mkarlsen/echotrim/internal/diaglog"
	"github.com/mkarlsen/echotrim/internal/events"
	"github.com/mkarlsen/echotrim/internal/fileutil"
	"github.com/mkarlsen/echotrim/internal/metrics"
	"github.com/mkarlsen/echotrim/internal/store"
)

// Scheduler cadence defaults. Deliberately slow so background compression
// never contends with interactive playback or an active recording.
const (
	DefaultStartupDelay = 30 * time.Second
	DefaultIdlePoll     = 60 * time.Second
	DefaultInterJob     = 5 * time.Second
	DefaultErrorBackoff = 5 * time.Second
)

// Scheduler is the background worker that finds transcribed recordings with
// uncompressed artifacts and compresses them one at a time.
type Scheduler struct {
	st   store.RecordingStore
	comp *Compressor
	bus  *events.Bus
	met  *metrics.Metrics
	dlog *diaglog.Logger

	startupDelay time.Duration
	idlePoll     time.Duration
	interJob     time.Duration
	errorBackoff time.Duration
	watchDir     string

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	wake     chan struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithIntervals overrides the cadence, mainly for tests.
func WithIntervals(startup, idle, interJob, backoff time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.startupDelay = startup
		s.idlePoll = idle
		s.interJob = interJob
		s.errorBackoff = backoff
	}
}

// WithBus publishes job-lifecycle events to bus.
func WithBus(b *events.Bus) SchedulerOption {
	return func(s *Scheduler) { s.bus = b }
}

// WithMetrics records scheduler metrics.
func WithMetrics(m *metrics.Metrics) SchedulerOption {
	return func(s *Scheduler) { s.met = m }
}

// WithSchedulerDiagLogger sets the diagnostic logger.
func WithSchedulerDiagLogger(l *diaglog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.dlog = l }
}

// WithWatchDir wakes the idle loop early when dir changes, instead of
// waiting out the full poll interval.
func WithWatchDir(dir string) SchedulerOption {
	return func(s *Scheduler) { s.watchDir = dir }
}

// NewScheduler creates a stopped Scheduler. Call Start to run it.
func NewScheduler(st store.RecordingStore, comp *Compressor, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		st:           st,
		comp:         comp,
		bus:          events.NewBus(),
		dlog:         diaglog.NewNoOp(),
		startupDelay: DefaultStartupDelay,
		idlePoll:     DefaultIdlePoll,
		interJob:     DefaultInterJob,
		errorBackoff: DefaultErrorBackoff,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the background loop.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop signals the loop to finish and waits up to timeout for it to exit.
// Stopping is cooperative: an in-flight compression is not interrupted, only
// the next iteration is skipped. Reports whether the loop exited in time.
func (s *Scheduler) Stop(timeout time.Duration) bool {
	s.stopOnce.Do(func() { close(s.stop) })

	select {
	case <-s.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Scheduler) run() {
	defer close(s.done)

	if s.watchDir != "" {
		if cleanup, err := s.watchForWakeups(); err == nil {
			defer cleanup()
		}
		// On watcher failure the idle poll alone keeps the loop live.
	}

	if !s.sleep(s.startupDelay, nil) {
		return
	}

	for {
		select {
		case <-s.stop:
			s.dlog.Log(diaglog.LogEntry{
				Component: diaglog.ComponentScheduler,
				Event:     diaglog.EventSchedulerStop,
			})
			return
		default:
		}

		rec, err := s.nextCandidate()
		if err != nil {
			s.dlog.Log(diaglog.LogEntry{
				Component: diaglog.ComponentScheduler,
				Event:     diaglog.EventCompressFailed,
				Reason:    err.Error(),
			})
			if !s.sleep(s.errorBackoff, nil) {
				return
			}
			continue
		}
		if rec == nil {
			if !s.sleep(s.idlePoll, s.wake) {
				return
			}
			continue
		}

		s.processRecording(*rec)
		if !s.sleep(s.interJob, nil) {
			return
		}
	}
}

// sleep waits for d, an early wakeup, or stop. Returns false on stop.
func (s *Scheduler) sleep(d time.Duration, wake <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.stop:
		return false
	case <-timer.C:
		return true
	case <-wake:
		return true
	}
}

// nextCandidate returns the oldest transcribed recording with at least one
// WAV artifact lacking its compressed counterpart, or nil when idle.
func (s *Scheduler) nextCandidate() (*store.RecordingRef, error) {
	refs, err := s.st.Candidates(store.StatusTranscribed)
	if err != nil {
		return nil, err
	}
	ext := s.comp.Format().Ext()
	for _, ref := range refs {
		for _, name := range fileutil.WAVArtifacts() {
			wavPath := filepath.Join(ref.Directory, name)
			if fileutil.Exists(wavPath) && !fileutil.Exists(fileutil.ReplaceExt(wavPath, ext)) {
				r := ref
				return &r, nil
			}
		}
	}
	return nil, nil
}

// processRecording runs one recording's full compression pass: mixdown
// synthesis if needed, then compression of every WAV artifact.
func (s *Scheduler) processRecording(ref store.RecordingRef) {
	ctx := context.Background()
	start := time.Now()

	s.dlog.Log(diaglog.LogEntry{
		Component: diaglog.ComponentScheduler,
		Event:     diaglog.EventCompressStart,
		Recording: ref.ID,
	})
	s.bus.Publish(events.Event{Type: events.CompressionStarted, RecordingID: ref.ID})
	if s.met != nil {
		s.met.CompressionActive.Set(1)
		s.met.CompressionJobs.Inc()
		defer func() {
			s.met.CompressionActive.Set(0)
			s.met.CompressionDuration.Observe(time.Since(start).Seconds())
		}()
	}

	if mixed, created, err := s.comp.EnsureMixdown(ctx, ref.Directory); err != nil {
		s.dlog.Log(diaglog.LogEntry{
			Component: diaglog.ComponentScheduler,
			Event:     diaglog.EventCompressFailed,
			Recording: ref.ID,
			Reason:    "mixdown: " + err.Error(),
		})
	} else if created {
		if err := s.st.UpdateArtifactPaths(ref.ID, map[string]string{store.FieldMixed: mixed}); err != nil {
			s.dlog.Log(diaglog.LogEntry{
				Component: diaglog.ComponentScheduler,
				Event:     diaglog.EventCompressFailed,
				Recording: ref.ID,
				Reason:    "update mixdown path: " + err.Error(),
			})
		}
	}

	results := s.comp.CompressRecording(ctx, ref.Directory)
	s.recordResults(ref, results)
}

func (s *Scheduler) recordResults(ref store.RecordingRef, results []FileResult) {
	paths := map[string]string{}
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		switch r.Name {
		case fileutil.MicrophoneWAV:
			paths[store.FieldMicrophone] = r.Path
		case fileutil.SystemWAV:
			paths[store.FieldSystem] = r.Path
		case fileutil.MixedWAV:
			paths[store.FieldMixed] = r.Path
		}
		if s.met != nil {
			if ratio, ok := sizeReduction(filepath.Join(ref.Directory, r.Name), r.Path); ok {
				s.met.CompressionReduction.Observe(ratio)
			}
		}
	}
	if len(paths) > 0 {
		if err := s.st.UpdateArtifactPaths(ref.ID, paths); err != nil {
			s.dlog.Log(diaglog.LogEntry{
				Component: diaglog.ComponentScheduler,
				Event:     diaglog.EventCompressFailed,
				Recording: ref.ID,
				Reason:    "update artifact paths: " + err.Error(),
			})
		}
	}

	count := CompressedCount(results)
	switch {
	case count > 0:
		s.dlog.Log(diaglog.LogEntry{
			Component: diaglog.ComponentScheduler,
			Event:     diaglog.EventCompressDone,
			Recording: ref.ID,
			Payload:   map[string]interface{}{"files": count},
		})
		s.bus.Publish(events.Event{
			Type:        events.CompressionCompleted,
			RecordingID: ref.ID,
			FileCount:   count,
		})
	case len(results) > 0:
		first := results[0].Err
		s.dlog.Log(diaglog.LogEntry{
			Component: diaglog.ComponentScheduler,
			Event:     diaglog.EventCompressFailed,
			Recording: ref.ID,
			Reason:    first.Error(),
		})
		if s.met != nil {
			s.met.CompressionFailures.Inc()
		}
		s.bus.Publish(events.Event{
			Type:        events.CompressionFailed,
			RecordingID: ref.ID,
			Detail:      first.Error(),
		})
	}
}

// sizeReduction reports the fraction of the original size saved by the
// compressed copy. Unavailable when the original was already removed.
func sizeReduction(original, compressed string) (float64, bool) {
	oi, err := os.Stat(original)
	if err != nil || oi.Size() == 0 {
		return 0, false
	}
	ci, err := os.Stat(compressed)
	if err != nil {
		return 0, false
	}
	return 1 - float64(ci.Size())/float64(oi.Size()), true
}

// watchForWakeups nudges the idle loop when the recordings root changes.
func (s *Scheduler) watchForWakeups() (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(s.watchDir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case <-s.stop:
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				select {
				case s.wake <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}
