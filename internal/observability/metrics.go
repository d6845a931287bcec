package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements the counters/timings/ratios required by the Metrics &
// Health component: requests, failures by kind, P50/P95 timings per
// operation, cache hit ratio, pool saturation, and schema-verification
// freshness. Each metric family is created lazily and cached so repeated
// calls with the same name reuse the same collector.
type Metrics struct {
	namespace string
	subsystem string
	registry  *prometheus.Registry
	factory   promauto.Factory

	mu         sync.RWMutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewMetrics creates a Metrics client registered under namespace/subsystem
// on its own registry, so multiple instances (e.g. in tests) never collide
// on the global default registerer.
func NewMetrics(namespace, subsystem string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		namespace:  namespace,
		subsystem:  subsystem,
		registry:   reg,
		factory:    promauto.With(reg),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	m.registerDefaults()
	return m
}

// Registry exposes the underlying Prometheus registry for a /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) registerDefaults() {
	m.counter("requests_total", "Total search/ingest requests", []string{"operation", "status"})
	m.counter("failures_total", "Total failures by taxonomy kind", []string{"operation", "kind"})
	m.histogram("operation_duration_seconds", "Operation latency", []string{"operation"}, prometheus.DefBuckets)
	m.counter("cache_operations_total", "Cache operations", []string{"result"})
	m.gauge("pool_in_use", "Connections currently leased from the pool", nil)
	m.gauge("pool_size", "Configured pool size", nil)
	m.gauge("schema_verified_timestamp", "Unix timestamp of the last successful schema verification", nil)
	m.gauge("health_status", "1 if the component is healthy, 0 otherwise", []string{"component"})
}

// RecordRequest records the outcome of a top-level operation (search, ingest, suggest).
func (m *Metrics) RecordRequest(operation, status string, duration time.Duration) {
	m.counter("requests_total", "", []string{"operation", "status"}).
		With(prometheus.Labels{"operation": operation, "status": status}).Inc()
	m.histogram("operation_duration_seconds", "", []string{"operation"}, prometheus.DefBuckets).
		With(prometheus.Labels{"operation": operation}).Observe(duration.Seconds())
}

// RecordFailure records a failure classified by its taxonomy kind.
func (m *Metrics) RecordFailure(operation, kind string) {
	m.counter("failures_total", "", []string{"operation", "kind"}).
		With(prometheus.Labels{"operation": operation, "kind": kind}).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *Metrics) RecordCacheOperation(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.counter("cache_operations_total", "", []string{"result"}).
		With(prometheus.Labels{"result": result}).Inc()
}

// SetPoolStats records current pool saturation.
func (m *Metrics) SetPoolStats(inUse, size int) {
	m.gauge("pool_in_use", "", nil).With(prometheus.Labels{}).Set(float64(inUse))
	m.gauge("pool_size", "", nil).With(prometheus.Labels{}).Set(float64(size))
}

// SetSchemaVerified records the unix timestamp of the last schema verification.
func (m *Metrics) SetSchemaVerified(ts time.Time) {
	m.gauge("schema_verified_timestamp", "", nil).With(prometheus.Labels{}).Set(float64(ts.Unix()))
}

// SetHealth records whether a component is currently healthy.
func (m *Metrics) SetHealth(component string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.gauge("health_status", "", []string{"component"}).With(prometheus.Labels{"component": component}).Set(v)
}

// StartTimer returns a function that records the elapsed duration for operation on call.
func (m *Metrics) StartTimer(operation string) func(status string) {
	start := time.Now()
	return func(status string) {
		m.RecordRequest(operation, status, time.Since(start))
	}
}

func (m *Metrics) counter(name, help string, labels []string) *prometheus.CounterVec {
	m.mu.RLock()
	if c, ok := m.counters[name]; ok {
		m.mu.RUnlock()
		return c
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		return c
	}
	if help == "" {
		help = fmt.Sprintf("Counter for %s", name)
	}
	c := m.factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
	m.counters[name] = c
	return c
}

func (m *Metrics) gauge(name, help string, labels []string) *prometheus.GaugeVec {
	m.mu.RLock()
	if g, ok := m.gauges[name]; ok {
		m.mu.RUnlock()
		return g
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.gauges[name]; ok {
		return g
	}
	if help == "" {
		help = fmt.Sprintf("Gauge for %s", name)
	}
	g := m.factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
	m.gauges[name] = g
	return g
}

func (m *Metrics) histogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	m.mu.RLock()
	if h, ok := m.histograms[name]; ok {
		m.mu.RUnlock()
		return h
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histograms[name]; ok {
		return h
	}
	if help == "" {
		help = fmt.Sprintf("Histogram for %s", name)
	}
	h := m.factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	}, labels)
	m.histograms[name] = h
	return h
}
