// Package metrics holds the process's Prometheus collectors: fusion
// tick latency, upload batch outcomes and queue depth, per-channel
// buffer occupancy, and consent transitions. Registered against the
// default registry and served by internal/server at /metrics, the same
// way the teacher wires its own HTTP metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// FusionTickDuration measures wall-clock time spent in one fusion
	// tick (feature query, impute, axis/embedding/physio compute).
	FusionTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "synheart_fusion_tick_duration_seconds",
		Help:    "Duration of one fusion engine tick.",
		Buckets: prometheus.DefBuckets,
	})

	// FusionTicksTotal counts fusion ticks by outcome: ok, nonfinite
	// (HumanStateVector.Finite() failed and the tick was dropped).
	FusionTicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "synheart_fusion_ticks_total",
		Help: "Total fusion engine ticks by outcome.",
	}, []string{"outcome"})

	// ChannelBufferOccupancy reports the current sample count held in
	// a channel aggregator's raw-sample buffer.
	ChannelBufferOccupancy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "synheart_channel_buffer_occupancy",
		Help: "Number of samples currently buffered per channel.",
	}, []string{"channel"})

	// UploadQueueDepth reports the number of unacknowledged items
	// waiting in the upload queue.
	UploadQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "synheart_upload_queue_depth",
		Help: "Number of unacknowledged items in the upload queue.",
	})

	// UploadBatchesTotal counts upload batch send attempts by outcome:
	// acked, dropped (non-retryable 4xx), or retried (5xx/429/network).
	UploadBatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "synheart_upload_batches_total",
		Help: "Total upload batch send attempts by outcome.",
	}, []string{"outcome"})

	// ConsentTransitionsTotal counts per-channel consent transitions by
	// direction: granted or revoked.
	ConsentTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "synheart_consent_transitions_total",
		Help: "Total consent transitions by channel and direction.",
	}, []string{"channel", "direction"})

	// HeadFailuresTotal counts interpretation head processing failures
	// by head name (emotion, focus).
	HeadFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "synheart_head_failures_total",
		Help: "Total interpretation head processing failures by head.",
	}, []string{"head"})
)

func init() {
	prometheus.MustRegister(
		FusionTickDuration,
		FusionTicksTotal,
		ChannelBufferOccupancy,
		UploadQueueDepth,
		UploadBatchesTotal,
		ConsentTransitionsTotal,
		HeadFailuresTotal,
	)
}

// ObserveTickDuration records d against the fusion tick histogram.
func ObserveTickDuration(d time.Duration) {
	FusionTickDuration.Observe(d.Seconds())
}
