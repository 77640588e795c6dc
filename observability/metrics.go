package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketRPCMetrics records JSON-RPC market module activity.
type MarketRPCMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	marketMetricsOnce sync.Once
	marketRegistry    *MarketRPCMetrics
)

// MarketMetrics returns the lazily-initialised metrics registry used to
// record market RPC activity.
func MarketMetrics() *MarketRPCMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &MarketRPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tokenmart",
				Subsystem: "market",
				Name:      "requests_total",
				Help:      "Total JSON-RPC market requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tokenmart",
				Subsystem: "market",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC market handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(marketRegistry.requests, marketRegistry.latency)
	})
	return marketRegistry
}

// Observe records one handled request with its outcome and duration.
func (m *MarketRPCMetrics) Observe(method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	method = strings.TrimSpace(method)
	if method == "" {
		method = "unknown"
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}
