// Package metrics exposes the prometheus collectors for DeltaDatabase,
// adapted from the teacher's cluster-shaped metrics down to the
// entity/cache/worker-registry series this spec calls for.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deltadb_requests_total",
		Help: "Total REST requests handled, by endpoint and HTTP status text.",
	}, []string{"endpoint", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deltadb_request_duration_seconds",
		Help:    "REST request latency in seconds, by endpoint.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deltadb_cache_hits_total",
		Help: "Total LRUCache hits.",
	})

	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deltadb_cache_misses_total",
		Help: "Total LRUCache misses.",
	})

	CacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deltadb_cache_entries",
		Help: "Current number of entries held in the LRUCache.",
	})

	WorkersAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deltadb_workers_available",
		Help: "Current number of Available subscribed Processing Workers.",
	})

	WorkersTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deltadb_workers_total",
		Help: "Current number of subscribed Processing Workers, any status.",
	})

	EntityWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deltadb_entity_writes_total",
		Help: "Total successful entity writes, by database.",
	}, []string{"database"})

	EntityReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deltadb_entity_reads_total",
		Help: "Total successful entity reads, by database.",
	}, []string{"database"})
)

// Handler returns the promhttp handler for a /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
