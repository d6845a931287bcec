package index

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/developer-mesh/semantic-graph-search/internal/observability"
	"github.com/developer-mesh/semantic-graph-search/pkg/graphstore"
)

func TestManagerBootstrapIsIdempotent(t *testing.T) {
	store := graphstore.NewMockStore()
	m := NewManager(store, 8, observability.NewNoopLogger())

	require.NoError(t, m.Bootstrap(context.Background(), time.Second))
	require.NoError(t, m.Bootstrap(context.Background(), time.Second))
	require.True(t, m.initialized)
}

func TestManagerBootstrapSerializesConcurrentCallers(t *testing.T) {
	store := graphstore.NewMockStore()
	m := NewManager(store, 8, observability.NewNoopLogger())

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = m.Bootstrap(context.Background(), time.Second)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
}

func TestManagerVerifyReportsHealthy(t *testing.T) {
	store := graphstore.NewMockStore()
	m := NewManager(store, 8, observability.NewNoopLogger())

	report := m.Verify(context.Background(), time.Second)
	require.True(t, report.Healthy)
	require.NotEmpty(t, report.Checks)
}
