// ============================================================================
// Store Resolver Metrics - Prometheus Instrumentation
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Function: Counts resolution outcomes and exposes them to Prometheus
//
// Metrics:
//
//   1. Counters:
//      - store_resolve_total{type}: one increment per finished resolution
//          hit              served from a fresh cache entry
//          miss             refreshed from the coordinator
//          tombstone        store has been removed (diagnostic counter)
//          empty_address    coordinator returned no address
//          invalid_address  address could not be parsed
//          failed           coordinator call failed
//      - store_resolve_rejected_total: submissions refused by the worker queue
//
//   2. Histogram:
//      - store_resolve_coordinator_duration_seconds: coordinator round trips
//
// Prometheus query examples:
//
//   # tombstoned lookups per minute
//   rate(store_resolve_total{type="tombstone"}[1m])
//
//   # cache hit ratio
//   rate(store_resolve_total{type="hit"}[5m]) / rate(store_resolve_total[5m])
//
// ============================================================================

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for store_resolve_total
const (
	LabelHit            = "hit"
	LabelMiss           = "miss"
	LabelTombstone      = "tombstone"
	LabelEmptyAddress   = "empty_address"
	LabelInvalidAddress = "invalid_address"
	LabelFailed         = "failed"
)

// Collector holds the resolver's Prometheus metrics
type Collector struct {
	resolves            *prometheus.CounterVec
	rejected            prometheus.Counter
	coordinatorDuration prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewCollector creates the metrics and registers them with reg.
// A nil reg registers with prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "store_resolve_total",
			Help: "Total number of store address resolutions by outcome",
		}, []string{"type"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "store_resolve_rejected_total",
			Help: "Total number of resolve requests rejected by the worker queue",
		}),
		coordinatorDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "store_resolve_coordinator_duration_seconds",
			Help:    "Latency of coordinator store lookups in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(c.resolves, c.rejected, c.coordinatorDuration)

	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	} else {
		c.gatherer = prometheus.DefaultGatherer
	}
	return c
}

// RecordResolve counts one finished resolution with the given outcome label.
func (c *Collector) RecordResolve(outcome string) {
	c.resolves.WithLabelValues(outcome).Inc()
}

// RecordRejected counts a submission refused by the worker queue.
func (c *Collector) RecordRejected() {
	c.rejected.Inc()
}

// ObserveCoordinator records the latency of one coordinator lookup.
func (c *Collector) ObserveCoordinator(seconds float64) {
	c.coordinatorDuration.Observe(seconds)
}

// Handler serves the metrics of the registry this collector was registered with.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
