// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwork_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldwork_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	ModerationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwork_moderation_transitions_total",
			Help: "Moderation status changes by record kind and target status",
		},
		[]string{"kind", "to"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwork_uploads_total",
			Help: "File uploads by declared type and outcome",
		},
		[]string{"type", "result"},
	)

	UploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldwork_upload_bytes_total",
			Help: "Bytes stored by successful uploads",
		},
	)

	LikeToggles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwork_like_toggles_total",
			Help: "Like toggles by target kind and resulting state",
		},
		[]string{"kind", "liked"},
	)

	PendingRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fieldwork_pending_records",
			Help: "Records awaiting moderation, refreshed by the sampler",
		},
		[]string{"kind"},
	)

	EventClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldwork_event_clients",
			Help: "Connected admin WebSocket clients",
		},
	)
)

func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
