// Package metrics exposes the store subsystem's Prometheus collectors:
// sync durations, publish/unpublish counters, and per-store health gauges.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "quelle_store"

var (
	// SyncDuration observes how long a GitProvider sync takes, labeled by
	// the provider's cache directory (the "store" label) and provider type.
	SyncDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "sync_duration_seconds",
		Help:      "Duration of provider sync operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"store", "provider_type"})

	// Publishes counts publish attempts, labeled by store name and result
	// ("ok", "already_exists", "error").
	Publishes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "publishes_total",
		Help:      "Total number of publish attempts.",
	}, []string{"store", "result"})

	// Unpublishes counts unpublish attempts, labeled by store name and
	// result ("ok", "not_found", "error").
	Unpublishes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "unpublishes_total",
		Help:      "Total number of unpublish attempts.",
	}, []string{"store", "result"})

	// StoreReachable reports 1 if a store's last health check succeeded,
	// 0 otherwise.
	StoreReachable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "manager",
		Name:      "store_reachable",
		Help:      "Whether the store responded to its last health check.",
	}, []string{"store"})
)

func init() {
	prometheus.MustRegister(SyncDuration, Publishes, Unpublishes, StoreReachable)
}
