// Package index implements the Index Manager: idempotent bootstrap and
// verification of the graph store's schema, run at startup and on demand
// from an admin surface.
package index

import (
	"context"
	"sync"
	"time"

	"github.com/developer-mesh/semantic-graph-search/internal/observability"
	"github.com/developer-mesh/semantic-graph-search/pkg/coreerrors"
	"github.com/developer-mesh/semantic-graph-search/pkg/graphstore"
)

// Report is the structured outcome of Verify. Verify fills it with a single
// aggregate "schema" check (named after the error kind on failure); the
// individual indexes and constraints are not listed one by one.
type Report struct {
	Healthy bool
	Checks  []Check
}

// Check is one named schema requirement and whether it currently holds.
type Check struct {
	Name string
	OK   bool
	Err  string
}

// Manager serializes bootstrap/verify calls against one GraphStore so that
// concurrent startup races (multiple goroutines calling Bootstrap at
// process start) collapse into a single migration run. Grounded on
// pkg/database/migration/manager.go's Init/RunMigrations shape plus the
// sync.RWMutex idempotent-init guard in pkg/database/vector.go's
// VectorDatabase.Initialize.
type Manager struct {
	store  graphstore.GraphStore
	dim    int
	logger observability.Logger

	mu          sync.Mutex
	initialized bool
}

// NewManager constructs a Manager bound to store, which must already be
// verified to have dimension dim embeddings.
func NewManager(store graphstore.GraphStore, dim int, logger observability.Logger) *Manager {
	return &Manager{store: store, dim: dim, logger: logger}
}

// Bootstrap ensures the schema exists, blocking concurrent callers behind
// the first caller's run. Idempotent: a second Bootstrap after success
// returns immediately without re-running migrations.
func (m *Manager) Bootstrap(ctx context.Context, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	if err := m.store.EnsureSchema(ctx, m.dim, timeout); err != nil {
		return err
	}

	m.initialized = true
	m.logger.Info("schema bootstrap complete", map[string]interface{}{"dimension": m.dim})
	return nil
}

// Verify runs ensure_schema again and turns the outcome into a structured
// Report rather than a bare error, for use by an admin health surface.
func (m *Manager) Verify(ctx context.Context, timeout time.Duration) Report {
	err := m.store.EnsureSchema(ctx, m.dim, timeout)
	if err == nil {
		return Report{Healthy: true, Checks: []Check{{Name: "schema", OK: true}}}
	}

	check := Check{Name: "schema", OK: false, Err: err.Error()}
	if coreerr, ok := err.(*coreerrors.Error); ok {
		check.Name = string(coreerr.Kind)
	}
	return Report{Healthy: false, Checks: []Check{check}}
}
