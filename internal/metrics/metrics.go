// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upload outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	// HTTPRequestsTotal counts handled requests by route template, method and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// PhotoUploadsTotal counts photo uploads to the object store.
	PhotoUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_uploads_total",
			Help: "Total number of photo uploads by outcome",
		},
		[]string{"outcome"},
	)

	// PhotoUploadDuration tracks single photo upload latency.
	PhotoUploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "photo_upload_duration_seconds",
			Help: "Duration of single photo uploads in seconds",
			// TIFF frames run to tens of megabytes
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// RoutesCreatedTotal counts routes persisted from a CSV upload.
	RoutesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routes_created_total",
			Help: "Total number of routes created by initial status",
		},
		[]string{"status"},
	)
)

// RecordUpload records the outcome and latency of one photo upload.
func RecordUpload(err error, elapsed time.Duration) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	PhotoUploadsTotal.WithLabelValues(outcome).Inc()
	PhotoUploadDuration.Observe(elapsed.Seconds())
}

// RecordRequest records one served HTTP request.
func RecordRequest(method, path string, status int, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
