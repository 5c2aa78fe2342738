package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videosync_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "videosync_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Store Metrics
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videosync_store_operations_total",
			Help: "Total number of video store operations",
		},
		[]string{"operation", "status"},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "videosync_store_operation_duration_seconds",
			Help:    "Video store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Change Feed Metrics
	FeedEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videosync_feed_events_published_total",
			Help: "Total number of change events published",
		},
		[]string{"transport", "kind", "status"},
	)

	FeedEventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videosync_feed_events_delivered_total",
			Help: "Total number of change events delivered to subscribers",
		},
		[]string{"transport", "kind"},
	)

	FeedSubscriptionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "videosync_feed_subscriptions_active",
			Help: "Number of open change feed subscriptions",
		},
		[]string{"transport"},
	)

	// Sync Engine Metrics
	ReconciledEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videosync_reconciled_events_total",
			Help: "Change events applied by sync engines, by outcome",
		},
		[]string{"kind", "outcome"},
	)

	OverlayEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "videosync_overlay_entries",
			Help: "Optimistic records awaiting feed confirmation",
		},
	)

	// Resolver Metrics
	EnrichmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videosync_enrichments_total",
			Help: "Total number of provider metadata lookups",
		},
		[]string{"status"},
	)

	EnrichmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "videosync_enrichment_duration_seconds",
			Help:    "Provider metadata lookup latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	// Upload Metrics
	VideoUploadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "videosync_video_uploads_total",
			Help: "Total number of direct video uploads",
		},
	)

	VideoUploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "videosync_video_upload_size_bytes",
			Help:    "Size of uploaded videos in bytes",
			Buckets: prometheus.ExponentialBuckets(1024*1024, 2, 12), // 1MB to 2GB
		},
	)

	// Storage Metrics
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videosync_storage_operations_total",
			Help: "Total number of object storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "videosync_storage_operation_duration_seconds",
			Help:    "Object storage operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"operation"},
	)

	StorageBytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videosync_storage_bytes_transferred_total",
			Help: "Total bytes transferred to/from object storage",
		},
		[]string{"operation"},
	)

	// Refresh Job Metrics
	RefreshJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videosync_refresh_jobs_total",
			Help: "Total number of metadata refresh jobs, by stage",
		},
		[]string{"stage"},
	)

	RefreshJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "videosync_refresh_job_duration_seconds",
			Help:    "Metadata refresh job processing duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "videosync_queue_depth",
			Help: "Messages waiting in each refresh queue",
		},
		[]string{"queue"},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videosync_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videosync_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videosync_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// status maps an error to the label used by the *_total counters
func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordStoreOperation records a video store operation
func RecordStoreOperation(operation string, err error, duration float64) {
	StoreOperationsTotal.WithLabelValues(operation, status(err)).Inc()
	StoreOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordFeedPublish records a change event publication
func RecordFeedPublish(transport, kind string, err error) {
	FeedEventsPublished.WithLabelValues(transport, kind, status(err)).Inc()
}

// RecordFeedDelivery records a change event handed to a subscriber
func RecordFeedDelivery(transport, kind string) {
	FeedEventsDelivered.WithLabelValues(transport, kind).Inc()
}

// RecordReconciliation records how a sync engine applied a change event
func RecordReconciliation(kind, outcome string) {
	ReconciledEventsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordEnrichment records a provider metadata lookup
func RecordEnrichment(err error, duration float64) {
	EnrichmentsTotal.WithLabelValues(status(err)).Inc()
	EnrichmentDuration.Observe(duration)
}

// RecordUpload records a direct video upload
func RecordUpload(size int64) {
	VideoUploadsTotal.Inc()
	VideoUploadSizeBytes.Observe(float64(size))
}

// RecordStorageOperation records an object storage operation
func RecordStorageOperation(operation, status string, duration float64, bytesTransferred int64) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
	StorageOperationDuration.WithLabelValues(operation).Observe(duration)
	StorageBytesTransferred.WithLabelValues(operation).Add(float64(bytesTransferred))
}

// RecordRefreshJob records a refresh job reaching stage (enqueued, completed, failed, skipped)
func RecordRefreshJob(stage string, duration float64) {
	RefreshJobsTotal.WithLabelValues(stage).Inc()
	if stage == "completed" || stage == "failed" {
		RefreshJobDuration.Observe(duration)
	}
}

// RecordQueueDepth records the number of messages waiting in queue
func RecordQueueDepth(queue string, depth int) {
	QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordCacheAccess records cache hit or miss
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
