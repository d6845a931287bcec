// Package health composes the component checks spec.md §4.6 names into a
// single healthy bool plus per-component detail, the way
// pkg/observability/prometheus_metrics.go's health gauge is fed from
// discrete subsystem probes.
package health

import (
	"context"
	"time"

	"github.com/developer-mesh/semantic-graph-search/internal/observability"
)

// ModelProbe reports whether the embedding model is loaded and reachable.
type ModelProbe interface {
	Ping(ctx context.Context) error
}

// StoreProbe reports whether the graph store is reachable.
type StoreProbe interface {
	Ping(ctx context.Context) error
}

// CacheProbe reports whether the cache tier is reachable; a disabled
// cache (CacheProbe == nil passed to NewChecker) counts as healthy per spec.
type CacheProbe interface {
	Ping(ctx context.Context) error
}

// Component is one named check's outcome.
type Component struct {
	Name    string
	Healthy bool
	Err     string
}

// Report is the composed health probe result.
type Report struct {
	Healthy    bool
	Components []Component
}

// Checker composes the four probes named in spec.md §4.6. A nil CacheProbe
// means the cache tier is disabled by configuration and is treated as
// healthy, matching "cache-reachable-or-disabled".
type Checker struct {
	Model       ModelProbe
	Store       StoreProbe
	SchemaOK    func(ctx context.Context) bool
	Cache       CacheProbe
	ProbeTimout time.Duration
	metrics     *observability.Metrics
}

// NewChecker constructs a Checker. probeTimeout bounds each individual
// probe call; a probe that does not answer within it counts as unhealthy.
func NewChecker(model ModelProbe, store StoreProbe, schemaOK func(ctx context.Context) bool, cache CacheProbe, probeTimeout time.Duration, metrics *observability.Metrics) *Checker {
	return &Checker{Model: model, Store: store, SchemaOK: schemaOK, Cache: cache, ProbeTimout: probeTimeout, metrics: metrics}
}

// Check runs all probes and composes the result. Each probe gets its own
// timeout-bounded context so one slow dependency cannot stall the others;
// probes are not run concurrently since health checks are infrequent and a
// sequential walk keeps the outcome easy to reason about.
func (c *Checker) Check(ctx context.Context) Report {
	var components []Component
	allHealthy := true

	run := func(name string, probe func(context.Context) error) {
		pctx, cancel := context.WithTimeout(ctx, c.ProbeTimout)
		defer cancel()
		comp := Component{Name: name, Healthy: true}
		if err := probe(pctx); err != nil {
			comp.Healthy = false
			comp.Err = err.Error()
			allHealthy = false
		}
		components = append(components, comp)
		c.metrics.SetHealth(name, comp.Healthy)
	}

	if c.Model != nil {
		run("model", c.Model.Ping)
	}
	if c.Store != nil {
		run("store", c.Store.Ping)
	}
	if c.SchemaOK != nil {
		pctx, cancel := context.WithTimeout(ctx, c.ProbeTimout)
		ok := c.SchemaOK(pctx)
		cancel()
		components = append(components, Component{Name: "schema", Healthy: ok})
		c.metrics.SetHealth("schema", ok)
		if !ok {
			allHealthy = false
		}
	}
	if c.Cache != nil {
		run("cache", c.Cache.Ping)
	} else {
		components = append(components, Component{Name: "cache", Healthy: true})
		c.metrics.SetHealth("cache", true)
	}

	c.metrics.SetHealth("overall", allHealthy)
	return Report{Healthy: allHealthy, Components: components}
}
