// Package metrics exposes the Prometheus collectors for the marketplace.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "marketplace",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marketplace",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	bidsPlaced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "bidding",
			Name:      "bids_placed_total",
			Help:      "Total number of accepted bids.",
		},
	)

	bidsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "bidding",
			Name:      "bids_rejected_total",
			Help:      "Total number of rejected bid attempts.",
		},
		[]string{"reason"},
	)

	settlements = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "settlement",
			Name:      "settlements_total",
			Help:      "Total number of completed settlements.",
		},
	)

	settlementVolume = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "settlement",
			Name:      "volume_total",
			Help:      "Sum of winning bid amounts across settlements.",
		},
	)

	expiredItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "expiry",
			Name:      "expired_items_total",
			Help:      "Items found past their auction window by the sweeper.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		bidsPlaced,
		bidsRejected,
		settlements,
		settlementVolume,
		expiredItems,
	)
}

// Handler serves the registry on /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished HTTP request.
func ObserveRequest(method, path, status string, took time.Duration) {
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(took.Seconds())
}

// RequestStarted marks a request in flight; the returned func ends it.
func RequestStarted() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

// BidPlaced records an accepted bid.
func BidPlaced() { bidsPlaced.Inc() }

// BidRejected records a rejected bid attempt with its reason.
func BidRejected(reason string) { bidsRejected.WithLabelValues(reason).Inc() }

// SettlementCompleted records one settlement and its volume.
func SettlementCompleted(amount uint64) {
	settlements.Inc()
	settlementVolume.Add(float64(amount))
}

// ItemExpired records one item found past its window by the sweeper.
func ItemExpired(outcome string) { expiredItems.WithLabelValues(outcome).Inc() }
