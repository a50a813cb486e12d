// Package metrics provides Prometheus instrumentation for the router.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ModeSync   = "sync"
	ModeStream = "stream"

	StatusOK    = "ok"
	StatusError = "error"

	StageExtract = "extract"
	StageStage   = "stage"
	StageUpload  = "upload"
)

var (
	// RequestsTotal counts routed requests by provider, mode and outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_requests_total",
			Help: "Total number of routed requests.",
		},
		[]string{"provider", "mode", "status"},
	)

	// RequestDuration tracks time spent in the provider call. For streams it
	// runs until the consumer drains or closes the stream.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "router_request_duration_seconds",
			Help:    "Provider call latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "mode"},
	)

	// StreamFragmentsTotal counts fragments handed to stream consumers.
	StreamFragmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_stream_fragments_total",
			Help: "Total number of streamed fragments.",
		},
		[]string{"provider", "failed"},
	)

	// AttachmentFailuresTotal counts attachments dropped during enrichment or upload.
	AttachmentFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachment_failures_total",
			Help: "Total number of attachments that could not be processed.",
		},
		[]string{"stage"}, // "extract", "stage" or "upload"
	)

	// BlobDeletionsTotal counts blob deletions by outcome.
	BlobDeletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blob_deletions_total",
			Help: "Total number of blob deletions.",
		},
		[]string{"status"},
	)
)

// ObserveRequest records one routed call.
func ObserveRequest(provider, mode string, started time.Time, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	RequestsTotal.WithLabelValues(provider, mode, status).Inc()
	RequestDuration.WithLabelValues(provider, mode).Observe(time.Since(started).Seconds())
}

// ObserveFragment records one streamed fragment.
func ObserveFragment(provider string, failed bool) {
	StreamFragmentsTotal.WithLabelValues(provider, strconv.FormatBool(failed)).Inc()
}

// AttachmentFailed records one dropped attachment.
func AttachmentFailed(stage string) {
	AttachmentFailuresTotal.WithLabelValues(stage).Inc()
}
