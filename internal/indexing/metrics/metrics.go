package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionsProcessed tracks transactions processed per scanner
	TransactionsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aliaswatch_transactions_processed_total",
			Help: "Total number of transactions processed",
		},
		[]string{"scanner"},
	)

	// TransactionsSkipped tracks transactions skipped per scanner and reason
	TransactionsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aliaswatch_transactions_skipped_total",
			Help: "Total number of transactions skipped",
		},
		[]string{"scanner", "reason"},
	)

	// DecodeErrors tracks envelope decode failures per layer
	DecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aliaswatch_decode_errors_total",
			Help: "Total number of envelope decode failures",
		},
		[]string{"scanner", "layer"},
	)

	// MatchesEmitted tracks match events per provenance and resolution
	MatchesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aliaswatch_matches_emitted_total",
			Help: "Total number of match events emitted",
		},
		[]string{"scanner", "provenance", "resolution"},
	)

	// BindingsCreated tracks identity bindings per source
	BindingsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aliaswatch_bindings_created_total",
			Help: "Total number of identity bindings created",
		},
		[]string{"source"},
	)

	// ReconcileAmbiguous tracks heuristic resolutions that found no unique candidate
	ReconcileAmbiguous = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aliaswatch_reconcile_ambiguous_total",
			Help: "Total number of ambiguous heuristic reconciliations",
		},
	)

	// SourceCallsTotal tracks transaction source calls
	SourceCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aliaswatch_source_calls_total",
			Help: "Total number of transaction source calls",
		},
		[]string{"source", "method"},
	)

	// SourceErrorsTotal tracks transaction source errors
	SourceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aliaswatch_source_errors_total",
			Help: "Total number of transaction source errors",
		},
		[]string{"source", "error_type"},
	)

	// SourceLatency tracks transaction source call latency
	SourceLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aliaswatch_source_latency_seconds",
			Help:    "Transaction source call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "method"},
	)

	// ScannerWatermark tracks the committed watermark, in seconds since epoch
	ScannerWatermark = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aliaswatch_scanner_watermark_seconds",
			Help: "Committed consensus position of the scanner",
		},
		[]string{"scanner"},
	)

	// CycleDuration tracks scan cycle latency
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aliaswatch_cycle_duration_seconds",
			Help:    "Scan cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scanner"},
	)

	// WatchlistSize tracks the number of watched addresses
	WatchlistSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aliaswatch_watchlist_size",
			Help: "Number of watched addresses",
		},
	)

	// DBConnectionPoolUsage tracks database pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aliaswatch_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
