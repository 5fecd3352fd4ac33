package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus series exposed on /metrics: promauto-
// registered collectors against the default registry, labeled by traded
// pair where per-pair breakdown is useful.
type Metrics struct {
	SummariesPublished *prometheus.CounterVec
	ActiveAggregators  prometheus.Gauge
	AdapterReconnects  *prometheus.CounterVec
}

// NewMetrics registers and returns the dashboard's Prometheus
// collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		SummariesPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderbook_aggregator",
			Name:      "summaries_published_total",
			Help:      "Number of merged Summaries published per traded pair.",
		}, []string{"pair"}),
		ActiveAggregators: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "orderbook_aggregator",
			Name:      "active_aggregators",
			Help:      "Number of Aggregators currently registered in the Subscription Registry.",
		}),
		AdapterReconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderbook_aggregator",
			Name:      "adapter_reconnect_attempts_total",
			Help:      "Number of adapter connect attempts per exchange.",
		}, []string{"exchange"}),
	}
}
