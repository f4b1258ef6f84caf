// Package metrics exposes the orchestrator's Prometheus instrumentation:
// tick latency, breaker trips, provider failovers, and fill ratio.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the orchestrator's Prometheus collectors.
type Registry struct {
	TickLatency       prometheus.Histogram
	TickErrors        prometheus.Counter
	BreakerTrips      *prometheus.CounterVec
	ProviderFailovers *prometheus.CounterVec
	FillRatio         prometheus.Gauge
	TradesPlaced      *prometheus.CounterVec
	RiskRejections    *prometheus.CounterVec
}

// NewRegistry registers the orchestrator's collectors against reg.
// Pass prometheus.NewRegistry() for isolated tests, or
// prometheus.DefaultRegisterer for process-wide export.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		TickLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "atlas",
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock duration of one Fetch-Decide-Execute-Account tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		TickErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "atlas",
			Subsystem: "scheduler",
			Name:      "tick_errors_total",
			Help:      "Ticks that returned an error from fetch.",
		}),
		BreakerTrips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atlas",
			Name:      "breaker_trips_total",
			Help:      "Circuit breaker trips by scope and key.",
		}, []string{"scope", "key"}),
		ProviderFailovers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atlas",
			Subsystem: "advisor",
			Name:      "provider_failovers_total",
			Help:      "Advisor provider failover events by provider name.",
		}, []string{"provider"}),
		FillRatio: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "atlas",
			Subsystem: "execution",
			Name:      "fill_ratio",
			Help:      "Most recent ExecutionResult filled_quantity / total_quantity.",
		}),
		TradesPlaced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atlas",
			Subsystem: "scheduler",
			Name:      "trades_placed_total",
			Help:      "Accepted trades by symbol.",
		}, []string{"symbol"}),
		RiskRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atlas",
			Subsystem: "risk",
			Name:      "rejections_total",
			Help:      "RiskManager sizing rejections by reason.",
		}, []string{"reason"}),
	}
}

// Handler returns the HTTP handler the status API's metrics server
// mounts at /metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
