package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetrent_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleetrent_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	bookingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleetrent_booking_duration_seconds",
		Help:    "Duration of reservation create attempts by outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	statusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetrent_reservation_transitions_total",
		Help: "Count of reservation status transitions",
	}, []string{"to"})

	activeReservations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetrent_active_reservations",
		Help: "Number of pending and confirmed reservations",
	})

	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetrent_catalog_cache_requests_total",
		Help: "Catalog cache lookups by result",
	}, []string{"result"})
)

// ObserveHTTPRequest records an HTTP request metric.
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveBooking records the duration of a create attempt with a result
// label (created, conflict, rejected, error).
func ObserveBooking(result string, duration time.Duration) {
	bookingDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveTransition counts a status transition by target status.
func ObserveTransition(to string) {
	statusTransitions.WithLabelValues(to).Inc()
}

// SetActiveReservations sets the active reservation gauge.
func SetActiveReservations(count int) {
	if count < 0 {
		count = 0
	}
	activeReservations.Set(float64(count))
}

// ObserveCacheLookup counts a catalog cache lookup (hit, miss, error,
// bypass).
func ObserveCacheLookup(result string) {
	cacheRequests.WithLabelValues(result).Inc()
}
