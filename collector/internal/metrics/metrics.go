package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline accounting. For every signal and closed window,
	// ingested == exported + dropped + refused.
	RecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traceway_collector_records_ingested_total",
			Help: "Records accepted by the receiver, per signal",
		},
		[]string{"signal"},
	)

	RecordsExported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traceway_collector_records_exported_total",
			Help: "Records handed to the exporter router, per signal",
		},
		[]string{"signal"},
	)

	RecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traceway_collector_records_dropped_total",
			Help: "Records dropped by a failing stage, per signal and stage",
		},
		[]string{"signal", "stage"},
	)

	RecordsRefused = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traceway_collector_records_refused_total",
			Help: "Records refused under memory pressure, per signal",
		},
		[]string{"signal"},
	)

	// Memory limiter.
	MemoryInFlightBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "traceway_collector_memory_inflight_bytes",
			Help: "Approximate in-flight batch bytes across all pipelines",
		},
	)

	MemoryLimitBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "traceway_collector_memory_limit_bytes",
			Help: "Configured hard ceiling for in-flight batch bytes",
		},
	)

	// Label promotion.
	PromoteMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "traceway_collector_promote_misses_total",
			Help: "Promotions requested for attributes absent from the record",
		},
	)

	// Export path.
	SinkSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "traceway_collector_sink_send_duration_seconds",
			Help:    "Duration of sink push attempts in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sink"},
	)

	SinkSendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traceway_collector_sink_send_failures_total",
			Help: "Failed sink push attempts, per sink",
		},
		[]string{"sink"},
	)

	SinkQueueDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traceway_collector_sink_queue_dropped_total",
			Help: "Batches dropped from a full sink queue (oldest first), per sink",
		},
		[]string{"sink"},
	)

	SinkQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "traceway_collector_sink_queue_depth",
			Help: "Current queued batches, per sink",
		},
		[]string{"sink"},
	)

	// Receiver.
	DecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traceway_collector_decode_errors_total",
			Help: "Malformed payloads rejected at decode time, per protocol",
		},
		[]string{"protocol"},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "traceway_collector_rate_limit_hits_total",
			Help: "Requests rejected by the ingestion rate limiter",
		},
	)

	// Dead letter queue.
	DLQWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traceway_collector_dlq_written_total",
			Help: "Batches written to the dead letter queue, per reason",
		},
		[]string{"reason"},
	)
)
