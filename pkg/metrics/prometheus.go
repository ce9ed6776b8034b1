// Package metrics provides Prometheus metrics for the rider tracking gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ridetrack"

// registry is the gateway's own registry so tests and the /metrics endpoint
// see exactly the metrics declared here.
var registry = prometheus.NewRegistry()

// GetRegistry returns the registry the HTTP layer serves.
func GetRegistry() *prometheus.Registry { return registry }

var (
	eventsReceived = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_received_total",
		Help:      "Normalized presence events received, by event kind.",
	}, []string{"kind"})

	eventsDropped = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Events dropped before reaching the reconciler, by reason.",
	}, []string{"reason"})

	queueDepth = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "event_queue_depth",
		Help:      "Events currently buffered between transport and reconciler, per session.",
	}, []string{"session"})

	activeSessions = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Tracking sessions currently running.",
	})

	riderMapSize = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rider_map_size",
		Help:      "Riders currently tracked, per session.",
	}, []string{"session"})

	markerOps = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "marker_ops_total",
		Help:      "Marker mutations issued to the map sink, by operation.",
	}, []string{"op"})

	subscriptionFailures = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscription_failures_total",
		Help:      "Channel subscriptions that failed to establish.",
	}, []string{"channel_kind"})

	detailFetchLatency = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rider_detail_fetch_seconds",
		Help:      "Latency of rider detail fetches triggered by assignments.",
		Buckets:   prometheus.DefBuckets,
	})

	detailFetchErrors = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rider_detail_fetch_errors_total",
		Help:      "Rider detail fetches that failed.",
	})

	httpRequests = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests served, by endpoint, method and status.",
	}, []string{"endpoint", "method", "status"})

	httpRequestDuration = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency, by endpoint and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "method"})
)

// RecordEvent counts a normalized event by kind.
func RecordEvent(kind string) { eventsReceived.WithLabelValues(kind).Inc() }

// RecordEventDropped counts an event dropped before the reconciler saw it.
func RecordEventDropped(reason string) { eventsDropped.WithLabelValues(reason).Inc() }

// UpdateQueueDepth sets a session's buffered-event gauge.
func UpdateQueueDepth(session string, n int) {
	queueDepth.WithLabelValues(session).Set(float64(n))
}

// SessionStarted and SessionEnded track the active session gauge.
func SessionStarted() { activeSessions.Inc() }
func SessionEnded()   { activeSessions.Dec() }

// UpdateRiderMapSize sets the per-session rider count.
func UpdateRiderMapSize(session string, n int) {
	riderMapSize.WithLabelValues(session).Set(float64(n))
}

// ForgetSession drops per-session series once a session is torn down.
func ForgetSession(session string) {
	riderMapSize.DeleteLabelValues(session)
	queueDepth.DeleteLabelValues(session)
}

// RecordMarkerOp counts a marker mutation (add, move, style, remove).
func RecordMarkerOp(op string) { markerOps.WithLabelValues(op).Inc() }

// RecordSubscriptionFailure counts a failed channel subscription.
func RecordSubscriptionFailure(channelKind string) {
	subscriptionFailures.WithLabelValues(channelKind).Inc()
}

// RecordDetailFetch observes one rider detail fetch.
func RecordDetailFetch(seconds float64, err error) {
	detailFetchLatency.Observe(seconds)
	if err != nil {
		detailFetchErrors.Inc()
	}
}

// RecordHTTPRequest counts a served request.
func RecordHTTPRequest(endpoint, method, status string) {
	httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

// RecordHTTPRequestDuration observes request latency.
func RecordHTTPRequestDuration(endpoint, method string, seconds float64) {
	httpRequestDuration.WithLabelValues(endpoint, method).Observe(seconds)
}
