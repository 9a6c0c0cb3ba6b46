// Package metrics provides the Prometheus metrics exported by the treewalk server.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "treewalk"

// Metrics groups every collector. It satisfies the recorder interfaces of the
// record store and the panorama lookup path.
type Metrics struct {
	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec
	StoreRecords    prometheus.Gauge
	Lookups         *prometheus.CounterVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	Imports         *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the collectors and registers them on registry. A nil registry
// gets a fresh one with the Go and process collectors attached.
func New(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m := &Metrics{
		StoreOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Record store operations by operation and status",
		}, []string{"operation", "status"}),
		StoreDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Record store operation latency including the persist step",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"operation"}),
		StoreRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_records",
			Help:      "Number of observations currently held by the record store",
		}),
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panorama_lookups_total",
			Help:      "Panorama lookups by outcome",
		}, []string{"outcome"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panorama_cache_hits_total",
			Help:      "Nearest-image lookups answered from cache",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panorama_cache_misses_total",
			Help:      "Nearest-image lookups forwarded to the provider",
		}),
		Imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "CSV imports by status",
		}, []string{"status"}),
		registry: registry,
	}
	for _, c := range []prometheus.Collector{m.StoreOperations, m.StoreDuration, m.StoreRecords, m.Lookups, m.CacheHits, m.CacheMisses, m.Imports} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// Registry returns the registry the collectors are attached to.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe records a record store operation.
func (m *Metrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	m.StoreOperations.WithLabelValues(operation, status(success)).Inc()
	m.StoreDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetRecordCount updates the record gauge.
func (m *Metrics) SetRecordCount(n int) { m.StoreRecords.Set(float64(n)) }

// ObserveLookup counts one panorama lookup outcome.
func (m *Metrics) ObserveLookup(outcome string) { m.Lookups.WithLabelValues(outcome).Inc() }

// CacheHit counts a cache hit.
func (m *Metrics) CacheHit() { m.CacheHits.Inc() }

// CacheMiss counts a cache miss.
func (m *Metrics) CacheMiss() { m.CacheMisses.Inc() }

// ObserveImport counts an import attempt.
func (m *Metrics) ObserveImport(success bool) { m.Imports.WithLabelValues(status(success)).Inc() }

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
