// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsTotal counts pcap records read
	RecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pcapscan_records_total",
			Help: "Total number of pcap records read",
		},
	)

	// CapturedBytesTotal counts captured packet bytes read
	CapturedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pcapscan_captured_bytes_total",
			Help: "Total number of captured packet bytes read",
		},
	)

	// RowsTotal counts rows emitted in batches
	RowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pcapscan_rows_total",
			Help: "Total number of rows emitted",
		},
	)

	// RowsFilteredTotal counts rows rejected by a predicate, by stage
	RowsFilteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcapscan_rows_filtered_total",
			Help: "Total number of rows rejected by a predicate",
		},
		[]string{"stage"}, // native | fallback
	)

	// BatchRows tracks the number of rows per emitted batch
	BatchRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pcapscan_batch_rows",
			Help:    "Number of rows per emitted batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16), // 1, 2, 4, ..., 32768
		},
	)

	// AnomaliesTotal counts non-fatal decode anomalies by kind
	AnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcapscan_decode_anomalies_total",
			Help: "Total number of non-fatal decode anomalies",
		},
		[]string{"kind"},
	)

	// PushdownTotal counts predicate negotiation outcomes
	PushdownTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcapscan_predicate_pushdown_total",
			Help: "Predicate pushdown outcomes",
		},
		[]string{"outcome"}, // native | unsupported
	)

	// ScanErrorsTotal counts fatal scan errors by kind
	ScanErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcapscan_scan_errors_total",
			Help: "Total number of fatal scan errors",
		},
		[]string{"kind"}, // format | truncated | io
	)

	// SinkMessagesTotal counts rows written by each sink
	SinkMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcapscan_sink_messages_total",
			Help: "Total number of rows written by sinks",
		},
		[]string{"sink"},
	)

	// SinkErrorsTotal counts sink write failures
	SinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcapscan_sink_errors_total",
			Help: "Total number of sink write errors",
		},
		[]string{"sink"},
	)
)

// Predicate filter stages
const (
	StageNative   = "native"
	StageFallback = "fallback"
)

// Pushdown outcomes
const (
	PushdownNative      = "native"
	PushdownUnsupported = "unsupported"
)
