package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Source metrics
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpaction_pages_fetched_total",
			Help: "Total number of source pages fetched successfully",
		},
		[]string{"action_type"},
	)

	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpaction_fetch_attempts_total",
			Help: "Total number of source requests by outcome",
		},
		[]string{"action_type", "outcome"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corpaction_fetch_duration_seconds",
			Help:    "Duration of source page requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action_type"},
	)

	ThrottleWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpaction_throttle_waits_total",
			Help: "Total number of times a request waited on the rate limiter",
		},
		[]string{"key"},
	)

	// Row metrics
	RowsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpaction_rows_parsed_total",
			Help: "Total number of data rows seen by parsers",
		},
		[]string{"action_type"},
	)

	RowsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpaction_rows_rejected_total",
			Help: "Total number of rows rejected by stage",
		},
		[]string{"action_type", "stage"},
	)

	// Storage metrics
	UpsertResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpaction_upsert_results_total",
			Help: "Total number of upserts by result",
		},
		[]string{"action_type", "result"},
	)

	StorageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "corpaction_storage_duration_seconds",
			Help:    "Duration of record upserts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Reconciliation metrics
	Superseded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpaction_superseded_by_manual_total",
			Help: "Total number of scraped records superseded by manual entries",
		},
		[]string{"action_type"},
	)

	ManualUnavailable = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpaction_manual_unavailable_total",
			Help: "Total number of runs where the manual-entry store could not be read",
		},
		[]string{"action_type"},
	)

	// Run metrics
	TypeRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpaction_type_runs_total",
			Help: "Total number of action-type pipeline runs by status",
		},
		[]string{"action_type", "status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "corpaction_run_duration_seconds",
			Help:    "Duration of full pipeline runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "corpaction_last_run_timestamp_seconds",
			Help: "Unix time the last pipeline run finished",
		},
	)
)
