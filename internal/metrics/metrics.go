// Package metrics defines custom Prometheus metrics for blobgate.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// sizeBuckets are exponential buckets for request/response size histograms (bytes).
var sizeBuckets = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864}

// HTTP metrics (RED: Rate, Errors, Duration).
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobgate_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blobgate_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPRequestSize observes request body size in bytes.
	HTTPRequestSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blobgate_http_request_size_bytes",
			Help:    "Request body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize observes response body size in bytes.
	HTTPResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blobgate_http_response_size_bytes",
			Help:    "Response body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)
)

// Domain metrics.
var (
	// BackendOperationsTotal counts backend operations by operation name and status.
	BackendOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobgate_backend_operations_total",
			Help: "Backend operations by type",
		},
		[]string{"operation", "status"},
	)

	// ObjectsTotal is a gauge tracking total objects across all buckets.
	ObjectsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blobgate_objects_total",
			Help: "Total objects across all buckets",
		},
	)

	// BucketsTotal is a gauge tracking total buckets.
	BucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blobgate_buckets_total",
			Help: "Total buckets",
		},
	)

	// LocksHeldTotal is a gauge tracking currently unexpired advisory locks.
	LocksHeldTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blobgate_locks_held_total",
			Help: "Currently unexpired advisory locks",
		},
	)

	// LocksExpiredTotal counts locks reclaimed by the sweeper.
	LocksExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blobgate_locks_expired_total",
			Help: "Advisory locks reclaimed by cleanup_expired_locks",
		},
	)

	// BytesReceivedTotal counts total bytes received in request bodies.
	BytesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blobgate_bytes_received_total",
			Help: "Total bytes received (request bodies)",
		},
	)

	// BytesSentTotal counts total bytes sent in response bodies.
	BytesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blobgate_bytes_sent_total",
			Help: "Total bytes sent (response bodies)",
		},
	)
)

// Register registers all Prometheus collectors with the default registry.
// This must be called explicitly (typically from main) so that metrics
// registration can be made conditional on configuration. It is safe to call
// multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			HTTPRequestSize,
			HTTPResponseSize,
			BackendOperationsTotal,
			ObjectsTotal,
			BucketsTotal,
			LocksHeldTotal,
			LocksExpiredTotal,
			BytesReceivedTotal,
			BytesSentTotal,
		)
	})
}

// NormalizePath maps actual request paths to normalized path templates
// suitable for use as Prometheus metric labels. This avoids high-cardinality
// labels from individual bucket/object names.
func NormalizePath(path string) string {
	// Known fixed paths.
	switch path {
	case "/health":
		return "/health"
	case "/metrics":
		return "/metrics"
	case "/openapi.json":
		return "/openapi.json"
	case "/docs", "/docs/":
		return "/docs"
	case "/", "":
		return "/"
	}

	if strings.HasPrefix(path, "/docs") {
		return "/docs"
	}

	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "/"
	}

	switch {
	case trimmed == "buckets" || strings.HasPrefix(trimmed, "buckets?"):
		return "/buckets"
	case strings.HasPrefix(trimmed, "buckets/"):
		rest := strings.TrimPrefix(trimmed, "buckets/")
		switch {
		case strings.Contains(rest, "/objects/"):
			return "/buckets/{bucket}/objects/{key}"
		case strings.HasSuffix(rest, "/objects") || strings.Contains(rest, "/objects?"):
			return "/buckets/{bucket}/objects"
		case strings.Contains(rest, "/object-info/"):
			return "/buckets/{bucket}/object-info/{key}"
		case strings.Contains(rest, "/public-url/"):
			return "/buckets/{bucket}/public-url/{key}"
		default:
			return "/buckets/{id}"
		}
	}
	return "/{unknown}"
}
