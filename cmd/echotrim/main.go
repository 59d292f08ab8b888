package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkarlsen/echotrim/internal/audio"
	"github.com/mkarlsen/echotrim/internal/compress"
	"github.com/mkarlsen/echotrim/internal/config"
	"github.com/mkarlsen/echotrim/internal/diaglog"
	"github.com/mkarlsen/echotrim/internal/events"
	"github.com/mkarlsen/echotrim/internal/fileutil"
	"github.com/mkarlsen/echotrim/internal/metrics"
	"github.com/mkarlsen/echotrim/internal/pidfile"
	"github.com/mkarlsen/echotrim/internal/regions"
	"github.com/mkarlsen/echotrim/internal/store"
	"github.com/mkarlsen/echotrim/internal/transcoder"
	"github.com/mkarlsen/echotrim/internal/trimmer"
)

const logPrefix = "[echotrim]"

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

// CLI defines the command-line interface
type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version information"`
	Config  string           `short:"c" type:"path" help:"Path to JSON config file (default ~/.config/echotrim/config.json)"`

	Analyze  AnalyzeCmd  `cmd:"" help:"Print the waveform and silence summary for one recording artifact"`
	Trim     TrimCmd     `cmd:"" help:"Cut time ranges out of every artifact in a recording directory"`
	Compress CompressCmd `cmd:"" help:"Compress a recording directory's WAV artifacts once, then exit"`
	Watch    WatchCmd    `cmd:"" help:"Run the background compression daemon"`
	Diag     DiagCmd     `cmd:"" help:"Export the diagnostic log as a support bundle"`
}

// runtime carries the pieces every subcommand needs.
type runtime struct {
	cfg  *config.Config
	dlog *diaglog.Logger
}

func (rt *runtime) gateway() *transcoder.Gateway {
	return transcoder.New(rt.cfg.FFmpegPath,
		transcoder.WithTimeout(time.Duration(rt.cfg.TimeoutSeconds)*time.Second),
		transcoder.WithDiagLogger(rt.dlog))
}

func (rt *runtime) analysisOptions() audio.Options {
	mix := audio.MixPeak
	if rt.cfg.Mixdown == "rms" {
		mix = audio.MixRMS
	}
	return audio.Options{
		Buckets:          rt.cfg.WaveformBuckets,
		SilenceThreshold: rt.cfg.SilenceThreshold,
		MinSilence:       rt.cfg.MinSilenceSeconds,
		Mixdown:          mix,
	}
}

func (rt *runtime) format() transcoder.Format {
	return transcoder.Format(rt.cfg.CompressionFormat)
}

func debugLogPath() string {
	if p := os.Getenv("ECHOTRIM_LOG_PATH"); p != "" {
		return p
	}
	return "/tmp/echotrim-debug.log"
}

func main() {
	cliArgs := &CLI{}
	ctx := kong.Parse(cliArgs,
		kong.Name("echotrim"),
		kong.Description("Post-processor for meeting recordings: silence analysis, trimming, and background compression"),
		kong.UsageOnError(),
		kong.Vars{
			"version": Version,
		},
	)

	cfg, err := config.Load(cliArgs.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	diaglog.Version = Version
	dlog := diaglog.NewNoOp()
	if diaglog.IsDebugEnabled() {
		if l, derr := diaglog.New(debugLogPath()); derr != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open diagnostic log: %v (continuing)\n", derr)
		} else {
			dlog = l
		}
	}
	defer func() { _ = dlog.Close() }()

	if err := ctx.Run(&runtime{cfg: cfg, dlog: dlog}); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// analyze
// ─────────────────────────────────────────────────────────────────────────────

type AnalyzeCmd struct {
	File string `arg:"" type:"existingfile" help:"WAV or FLAC artifact to analyze"`
	JSON bool   `help:"Emit the full analysis (waveform included) as JSON"`
}

func (c *AnalyzeCmd) Run(rt *runtime) error {
	analysis, err := audio.AnalyzeFile(context.Background(), c.File, rt.gateway(), rt.analysisOptions())
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(analysis)
	}

	fmt.Printf("File:       %s\n", c.File)
	fmt.Printf("Duration:   %.2fs\n", analysis.Duration)
	fmt.Printf("Format:     %d Hz, %d-bit, %d channel(s)\n",
		analysis.Info.SampleRate, analysis.Info.BitDepth, analysis.Info.Channels)
	fmt.Printf("Waveform:   %d buckets\n", len(analysis.Waveform))

	if len(analysis.SilentRegions) == 0 {
		fmt.Println("No silent regions found.")
		return nil
	}
	fmt.Printf("Silent regions (>= %.1fs below threshold %.3f):\n",
		rt.cfg.MinSilenceSeconds, rt.cfg.SilenceThreshold)
	for _, r := range analysis.SilentRegions {
		fmt.Printf("  %8.2fs - %8.2fs  (%.2fs)\n", r.Start, r.End, r.Duration())
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// trim
// ─────────────────────────────────────────────────────────────────────────────

type TrimCmd struct {
	Dir      string   `arg:"" type:"existingdir" help:"Recording directory"`
	Cut      []string `short:"x" required:"" help:"Time range to remove, as start-end in seconds (repeatable, e.g. -x 12.5-80)"`
	NoBackup bool     `help:"Skip the .pretrim backup copies"`
}

func (c *TrimCmd) Run(rt *runtime) error {
	ctx := context.Background()
	gw := rt.gateway()

	cuts, err := parseCutRanges(c.Cut)
	if err != nil {
		return err
	}

	// Duration comes from whichever artifact exists; all artifacts of one
	// recording share a timeline.
	src := ""
	for _, name := range fileutil.AllArtifacts(rt.format().Ext()) {
		p := filepath.Join(c.Dir, name)
		if fileutil.Exists(p) {
			src = p
			break
		}
	}
	if src == "" {
		return fmt.Errorf("no recording artifacts in %s", c.Dir)
	}
	analysis, err := audio.AnalyzeFile(ctx, src, gw, rt.analysisOptions())
	if err != nil {
		return err
	}

	keeps, err := regions.ComputeKeepRegions(analysis.Duration, cuts, rt.cfg.MinPlayableSeconds)
	if err != nil {
		return err
	}

	tr := trimmer.New(gw,
		trimmer.WithDiagLogger(rt.dlog),
		trimmer.WithCompressedExt(rt.format().Ext()))
	trimmed, results, err := tr.TrimRecording(ctx, c.Dir, keeps, !c.NoBackup)
	if err != nil {
		return err
	}

	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Printf("  %-16s FAILED: %v\n", r.File, r.Err)
		case r.Trimmed:
			fmt.Printf("  %-16s trimmed\n", r.File)
		}
	}
	if !trimmed {
		return fmt.Errorf("no artifact was trimmed in %s", c.Dir)
	}
	fmt.Printf("Kept %.2fs of %.2fs.\n", regions.TrimmedDuration(keeps), analysis.Duration)
	return nil
}

// parseCutRanges parses "start-end" pairs in seconds.
func parseCutRanges(specs []string) ([]regions.CutMarker, error) {
	var cuts []regions.CutMarker
	for _, spec := range specs {
		lo, hi, ok := strings.Cut(spec, "-")
		if !ok {
			return nil, fmt.Errorf("invalid cut range %q: want start-end", spec)
		}
		start, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cut range %q: %w", spec, err)
		}
		end, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cut range %q: %w", spec, err)
		}
		if end <= start {
			return nil, fmt.Errorf("invalid cut range %q: end must be after start", spec)
		}
		cuts = append(cuts, regions.CutMarker{Start: start, End: end})
	}
	return cuts, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// compress
// ─────────────────────────────────────────────────────────────────────────────

type CompressCmd struct {
	Dir             string `arg:"" type:"existingdir" help:"Recording directory"`
	DeleteOriginals bool   `help:"Remove each WAV once its compressed copy exists"`
}

func (c *CompressCmd) Run(rt *runtime) error {
	ctx := context.Background()
	comp := compress.New(rt.gateway(),
		compress.WithFormat(rt.format()),
		compress.WithDeleteOriginals(c.DeleteOriginals || rt.cfg.DeleteOriginals),
		compress.WithDiagLogger(rt.dlog))

	if path, created, err := comp.EnsureMixdown(ctx, c.Dir); err != nil {
		fmt.Printf("  %-16s mixdown FAILED: %v\n", fileutil.MixedWAV, err)
	} else if created {
		fmt.Printf("  %-16s synthesized (%s)\n", fileutil.MixedWAV, filepath.Base(path))
	}

	results := comp.CompressRecording(ctx, c.Dir)
	ok := 0
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("  %-16s FAILED: %v\n", r.Name, r.Err)
			continue
		}
		fmt.Printf("  %-16s -> %s\n", r.Name, filepath.Base(r.Path))
		ok++
	}
	if len(results) == 0 {
		fmt.Println("Nothing to compress.")
		return nil
	}
	if ok == 0 {
		return fmt.Errorf("compression failed for every artifact in %s", c.Dir)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// watch
// ─────────────────────────────────────────────────────────────────────────────

type WatchCmd struct{}

func (c *WatchCmd) Run(rt *runtime) error {
	outLog, errLog, err := initDaemonLogging()
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}

	outLog.Println("===========================================")
	outLog.Println("Starting echotrim watch daemon v" + Version)
	outLog.Printf("PID: %d", os.Getpid())
	outLog.Printf("Recordings root: %s", rt.cfg.RecordingsRoot)
	outLog.Println("===========================================")

	// Two daemons compressing the same root would race each other's
	// temporary files.
	pidPath := pidfile.Path("echotrim-watch")
	lock, err := pidfile.Acquire(pidPath)
	if err != nil {
		errLog.Printf("Failed to acquire pid file: %v", err)
		return fmt.Errorf("another watch daemon may already be running (pidfile %s)", pidPath)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			errLog.Printf("Warning: failed to release pid file: %v", err)
		}
	}()
	outLog.Printf("[STARTUP] PID file created: %s", pidPath)

	st, err := store.NewFileStore(rt.cfg.RecordingsRoot)
	if err != nil {
		return fmt.Errorf("open recording store: %w", err)
	}

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	gw := transcoder.New(rt.cfg.FFmpegPath,
		transcoder.WithTimeout(time.Duration(rt.cfg.TimeoutSeconds)*time.Second),
		transcoder.WithDiagLogger(rt.dlog),
		transcoder.WithInvocationCounter(func(op string) {
			met.TranscoderInvocations.WithLabelValues(op).Inc()
		}))
	comp := compress.New(gw,
		compress.WithFormat(rt.format()),
		compress.WithDeleteOriginals(rt.cfg.DeleteOriginals),
		compress.WithDiagLogger(rt.dlog))

	bus := events.NewBus()
	hub := events.NewHub()
	detach := hub.Attach(bus)
	defer detach()
	defer hub.Close()

	mux := http.NewServeMux()
	mux.Handle("/events", hub)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: rt.cfg.ListenAddr, Handler: mux}
	go func() {
		outLog.Printf("[STARTUP] Listening on %s (/events, /metrics)", rt.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errLog.Printf("HTTP server error: %v", err)
		}
	}()

	sc := rt.cfg.Scheduler
	sched := compress.NewScheduler(st, comp,
		compress.WithIntervals(
			time.Duration(sc.StartupDelaySeconds)*time.Second,
			time.Duration(sc.IdlePollSeconds)*time.Second,
			time.Duration(sc.InterJobSeconds)*time.Second,
			compress.DefaultErrorBackoff),
		compress.WithBus(bus),
		compress.WithMetrics(met),
		compress.WithSchedulerDiagLogger(rt.dlog),
		compress.WithWatchDir(rt.cfg.RecordingsRoot))
	sched.Start()
	outLog.Printf("[STARTUP] Compression scheduler started (startup=%ds, idle=%ds, inter-job=%ds)",
		sc.StartupDelaySeconds, sc.IdlePollSeconds, sc.InterJobSeconds)

	// Mirror scheduler activity into the daemon log.
	unsubscribe := bus.Subscribe(func(e events.Event) {
		switch e.Type {
		case events.CompressionFailed:
			errLog.Printf("[EVENT] %s recording=%s detail=%s", e.Type, e.RecordingID, e.Detail)
		default:
			outLog.Printf("[EVENT] %s recording=%s files=%d", e.Type, e.RecordingID, e.FileCount)
		}
	})
	defer unsubscribe()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	outLog.Println("[RUNNING] Watch daemon is running")

	<-sigChan
	outLog.Println("===========================================")
	outLog.Printf("[SHUTDOWN] Received shutdown signal at %s", time.Now().Format(time.RFC3339))

	if !sched.Stop(30 * time.Second) {
		errLog.Println("[SHUTDOWN] Scheduler did not stop within 30s; a transcode may still be running")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errLog.Printf("[SHUTDOWN] HTTP server shutdown: %v", err)
	}

	outLog.Println("[SHUTDOWN] Shutting down gracefully")
	outLog.Println("===========================================")
	return nil
}

// initDaemonLogging sets up the watch daemon's log file pair with rotation.
func initDaemonLogging() (outLog, errLog *log.Logger, err error) {
	logDir := "/tmp"
	outPath := filepath.Join(logDir, "echotrim-watch.out.log")
	errPath := filepath.Join(logDir, "echotrim-watch.err.log")

	if err := rotateLogIfNeeded(outPath, 10*1024*1024); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate out log: %v\n", err)
	}
	if err := rotateLogIfNeeded(errPath, 10*1024*1024); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate err log: %v\n", err)
	}

	outFile, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	errFile, err := os.OpenFile(errPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}

	outLog = log.New(outFile, logPrefix+" ", log.LstdFlags)
	errLog = log.New(errFile, logPrefix+" ERROR: ", log.LstdFlags)
	return outLog, errLog, nil
}

// rotateLogIfNeeded renames a log file to .old once it exceeds maxSize bytes.
func rotateLogIfNeeded(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < maxSize {
		return nil
	}

	oldPath := logPath + ".old"
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old log: %w", err)
	}
	return os.Rename(logPath, oldPath)
}

// ─────────────────────────────────────────────────────────────────────────────
// diag
// ─────────────────────────────────────────────────────────────────────────────

type DiagCmd struct {
	Out string `short:"o" default:"." help:"Destination directory for the bundle"`
}

func (c *DiagCmd) Run(rt *runtime) error {
	path, n, err := diaglog.Export(debugLogPath(), c.Out)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w (hint: run with ECHOTRIM_DEBUG=true to enable logging)", err)
		}
		return err
	}
	fmt.Printf("Wrote: %s (%d lines)\n", path, n)
	return nil
}
