// Package metrics exposes coreminerd's runtime counters to Prometheus
// (SPEC_FULL.md §10 ambient stack: github.com/prometheus/client_golang).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every exported gauge/counter.
type Metrics struct {
	HashrateMhps *prometheus.GaugeVec
	Accepted     prometheus.Gauge
	Rejected     prometheus.Gauge
	Stale        prometheus.Gauge
	QueueDepth   prometheus.Gauge
	PoolIdle     *prometheus.GaugeVec
	NewBlocks    prometheus.Gauge
}

// New registers every metric against a fresh registry.
func New() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		HashrateMhps: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "coreminer",
			Name:      "hasher_mhps",
			Help:      "Rolling hashrate in megahashes per second, per hasher.",
		}, []string{"hasher_id", "kind"}),
		Accepted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "coreminer",
			Name:      "shares_accepted_total",
			Help:      "Total accepted shares.",
		}),
		Rejected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "coreminer",
			Name:      "shares_rejected_total",
			Help:      "Total rejected shares.",
		}),
		Stale: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "coreminer",
			Name:      "shares_stale_total",
			Help:      "Total shares discarded as stale before submission.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "coreminer",
			Name:      "work_queue_depth",
			Help:      "Current number of staged WorkUnits.",
		}),
		PoolIdle: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "coreminer",
			Name:      "pool_idle",
			Help:      "1 if the pool is currently marked idle, 0 otherwise.",
		}, []string{"pool_no", "url"}),
		NewBlocks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "coreminer",
			Name:      "new_blocks_total",
			Help:      "Total genuinely new blocks observed across all pools.",
		}),
	}, reg
}

// Handler returns the HTTP handler serving this registry's metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
