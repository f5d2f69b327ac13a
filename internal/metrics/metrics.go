package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest and transcode metrics
var (
	// UploadsIngested counts ingested originals by outcome.
	UploadsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "video",
			Name:      "uploads_ingested_total",
			Help:      "Total number of video uploads ingested",
		},
		[]string{"status"},
	)

	// TranscodeJobs counts transcode jobs by outcome.
	TranscodeJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "video",
			Name:      "transcode_jobs_total",
			Help:      "Total number of transcode jobs processed",
		},
		[]string{"status"},
	)

	// TranscodeDuration tracks encoder execution time.
	TranscodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "video",
			Name:      "transcode_duration_seconds",
			Help:      "Time taken for HLS transcoding",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200},
		},
	)

	// DownloadDuration tracks the time taken to fetch originals for transcoding.
	DownloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "video",
			Name:      "download_duration_seconds",
			Help:      "Time taken to download originals from object storage",
			Buckets:   []float64{1, 5, 10, 30, 60, 120},
		},
	)

	// UploadDuration tracks the time taken to upload HLS renditions.
	UploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "video",
			Name:      "hls_upload_duration_seconds",
			Help:      "Time taken to upload HLS renditions to object storage",
			Buckets:   []float64{1, 5, 10, 30, 60, 120},
		},
	)

	// ActiveJobs tracks the number of currently processing transcode jobs.
	ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "video",
			Name:      "active_transcode_jobs",
			Help:      "Number of currently processing transcode jobs",
		},
	)
)

// Provider and reconciliation metrics
var (
	// ProviderRequests counts managed provider API calls by operation and outcome.
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "video",
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Total number of managed provider API requests",
		},
		[]string{"operation", "status"},
	)

	// ReconcileRuns counts reconciliation sweeps by outcome.
	ReconcileRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "video",
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Total number of reconciliation sweeps",
		},
		[]string{"job", "status"},
	)

	// ReconcileTransitions counts managed asset state transitions applied.
	ReconcileTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "video",
			Subsystem: "reconcile",
			Name:      "transitions_total",
			Help:      "Total number of managed asset state transitions",
		},
		[]string{"to"},
	)

	// WebhookEvents counts provider webhook deliveries by type and outcome.
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "video",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Total number of provider webhook events",
		},
		[]string{"type", "status"},
	)
)

// Migration metrics
var (
	// MigrationsProcessed counts lesson migrations by outcome.
	MigrationsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "video",
			Subsystem: "migration",
			Name:      "lessons_total",
			Help:      "Total number of lesson migrations",
		},
		[]string{"status"},
	)

	// MigrationDuration tracks per-lesson migration time.
	MigrationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "video",
			Subsystem: "migration",
			Name:      "duration_seconds",
			Help:      "Time taken to migrate a lesson video",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
		},
	)
)

// Analytics metrics
var (
	// ViewSessionsRecorded counts view session writes by kind.
	ViewSessionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "video",
			Subsystem: "analytics",
			Name:      "view_sessions_total",
			Help:      "Total number of view sessions recorded",
		},
		[]string{"kind"},
	)

	// AnalyticsCacheLookups counts aggregate cache hits and misses.
	AnalyticsCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "video",
			Subsystem: "analytics",
			Name:      "cache_lookups_total",
			Help:      "Total number of analytics cache lookups",
		},
		[]string{"result"},
	)
)

// API metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "video",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request duration.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "video",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AccessDenials counts access guard rejections.
	AccessDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "video",
			Subsystem: "access",
			Name:      "denials_total",
			Help:      "Total number of access guard denials",
		},
		[]string{"action"},
	)
)

// RecordTranscodeSuccess records a successful transcode job.
func RecordTranscodeSuccess() {
	TranscodeJobs.WithLabelValues("success").Inc()
}

// RecordTranscodeFailure records a failed transcode job.
func RecordTranscodeFailure() {
	TranscodeJobs.WithLabelValues("failed").Inc()
}

// RecordTranscodeSkipped records a job completed in degraded mode.
func RecordTranscodeSkipped() {
	TranscodeJobs.WithLabelValues("skipped").Inc()
}
