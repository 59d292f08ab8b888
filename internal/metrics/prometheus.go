// Package metrics exposes Prometheus metrics for the watch daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics for the compression scheduler,
// the only long-running part of echotrim worth scraping.
type Metrics struct {
	CompressionJobs       prometheus.Counter
	CompressionFailures   prometheus.Counter
	CompressionActive     prometheus.Gauge
	CompressionDuration   prometheus.Histogram
	CompressionReduction  prometheus.Histogram
	TranscoderInvocations *prometheus.CounterVec
}

// New creates the metric set and registers it with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CompressionJobs: factory.NewCounter(prometheus.CounterOpts{
			Name: "echotrim_compression_jobs_total",
			Help: "Total number of recordings processed by the compression scheduler",
		}),
		CompressionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "echotrim_compression_failures_total",
			Help: "Total number of compression passes that failed",
		}),
		CompressionActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "echotrim_compression_active",
			Help: "1 while a compression pass is running, 0 when idle",
		}),
		CompressionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "echotrim_compression_duration_seconds",
			Help:    "Wall-clock duration of one recording's compression pass",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),
		CompressionReduction: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "echotrim_compression_reduction_ratio",
			Help:    "Size reduction achieved per compressed file (0.0 to 1.0)",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		TranscoderInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "echotrim_transcoder_invocations_total",
			Help: "Total transcoder process invocations by operation",
		}, []string{"op"}),
	}
}
