// Package metrics holds the Prometheus collectors of the process.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hrbpms",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code",
		},
		[]string{"method", "code"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hrbpms",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hrbpms",
			Name:      "session_transitions_total",
			Help:      "Session state transitions by target state",
		},
		[]string{"mode", "state"},
	)

	AuthOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hrbpms",
			Name:      "auth_operations_total",
			Help:      "Session manager operations by outcome",
		},
		[]string{"mode", "operation", "outcome"},
	)

	StoreCalls = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hrbpms",
			Name:      "record_store_call_duration_seconds",
			Help:      "Record store calls by collection, operation and outcome",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"collection", "operation", "outcome"},
	)
)

func RecordHTTP(method string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func RecordTransition(mode, state string) {
	SessionTransitions.WithLabelValues(mode, state).Inc()
}

func RecordAuth(mode, operation string, err error) {
	AuthOperations.WithLabelValues(mode, operation, outcome(err)).Inc()
}

func RecordStoreCall(collection, operation string, err error, duration time.Duration) {
	StoreCalls.WithLabelValues(collection, operation, outcome(err)).Observe(duration.Seconds())
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
