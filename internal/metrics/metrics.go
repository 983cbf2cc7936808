// Package metrics provides Prometheus metrics for the resolver and price oracle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chainlens"

// Metrics holds every collector used by the module.
type Metrics struct {
	// Resource metrics
	RPCClientsCreated *prometheus.CounterVec
	DBPoolsCreated    *prometheus.CounterVec
	RPCCallLatency    *prometheus.HistogramVec

	// Pricing metrics
	PriceReads    *prometheus.CounterVec
	PriceFallback *prometheus.CounterVec

	// Cache metrics
	CacheLookups       *prometheus.CounterVec
	CacheWriteFailures *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RPCClientsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "clients_created_total",
			Help:      "Total number of RPC clients dialed, by network",
		}, []string{"network"}),
		DBPoolsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "pools_created_total",
			Help:      "Total number of database pools opened, by network",
		}, []string{"network"}),
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "JSON-RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		PriceReads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "price_reads_total",
			Help:      "Pool price reads by pool type and mode (pinned, latest)",
		}, []string{"pool_type", "mode"}),
		PriceFallback: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "price_fallback_total",
			Help:      "Pinned pool reads that fell back to latest state",
		}, []string{"pool_type"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "cache_lookups_total",
			Help:      "Persistent cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		CacheWriteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "cache_write_failures_total",
			Help:      "Best-effort cache write-backs that failed",
		}, []string{"network"}),
	}
}

// Nop returns metrics registered on a private registry nobody scrapes.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler exposes gatherer in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
