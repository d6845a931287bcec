package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/developer-mesh/semantic-graph-search/internal/observability"
)

// pool wraps a *sqlx.DB with a fixed-size acquisition semaphore so that
// callers block (up to acquireTimeout) rather than pile up against the
// driver's own pool once SetMaxOpenConns is saturated. Grounded on the
// lock-guarded VectorDatabase of pkg/database/vector.go, adapted from a
// sync.RWMutex init-guard into a genuine bounded-acquisition semaphore.
type pool struct {
	db              *sqlx.DB
	sem             chan struct{}
	acquireTimeout  time.Duration
	queryTimeout    time.Duration
	logger          observability.Logger
	metrics         *observability.Metrics
}

// newPool opens a connection to storeURI and configures the driver pool to
// exactly size, matching the semaphore width one-to-one.
func newPool(storeURI string, size int, acquireTimeout, queryTimeout time.Duration, logger observability.Logger, metrics *observability.Metrics) (*pool, error) {
	db, err := sqlx.Connect("postgres", storeURI)
	if err != nil {
		return nil, fmt.Errorf("graphstore: connect: %w", err)
	}
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)

	sem := make(chan struct{}, size)
	for i := 0; i < size; i++ {
		sem <- struct{}{}
	}

	p := &pool{
		db:             db,
		sem:            sem,
		acquireTimeout: acquireTimeout,
		queryTimeout:   queryTimeout,
		logger:         logger,
		metrics:        metrics,
	}
	if metrics != nil {
		metrics.SetPoolStats(0, size)
	}
	return p, nil
}

// acquire blocks until a slot is free or acquireTimeout elapses, returning
// a release function the caller must call exactly once.
func (p *pool) acquire(ctx context.Context) (func(), error) {
	acqCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	select {
	case <-p.sem:
		if p.metrics != nil {
			p.metrics.SetPoolStats(cap(p.sem)-len(p.sem), cap(p.sem))
		}
		return func() {
			p.sem <- struct{}{}
			if p.metrics != nil {
				p.metrics.SetPoolStats(cap(p.sem)-len(p.sem), cap(p.sem))
			}
		}, nil
	case <-acqCtx.Done():
		return nil, fmt.Errorf("graphstore: pool acquire: %w", acqCtx.Err())
	}
}

func (p *pool) Close() error {
	return p.db.Close()
}

func (p *pool) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()
	return p.db.PingContext(pingCtx)
}
