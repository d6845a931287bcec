package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/developer-mesh/semantic-graph-search/internal/observability"
)

type stubProbe struct{ err error }

func (s stubProbe) Ping(_ context.Context) error { return s.err }

func TestCheckerReportsHealthyWhenAllProbesPass(t *testing.T) {
	c := NewChecker(stubProbe{}, stubProbe{}, func(context.Context) bool { return true }, stubProbe{}, time.Second, observability.NewMetrics("test", "health"))

	report := c.Check(context.Background())
	require.True(t, report.Healthy)
	require.Len(t, report.Components, 4)
}

func TestCheckerReportsUnhealthyWhenStoreUnreachable(t *testing.T) {
	c := NewChecker(stubProbe{}, stubProbe{err: errors.New("connection refused")}, func(context.Context) bool { return true }, stubProbe{}, time.Second, observability.NewMetrics("test", "health"))

	report := c.Check(context.Background())
	require.False(t, report.Healthy)
	var storeComp Component
	for _, comp := range report.Components {
		if comp.Name == "store" {
			storeComp = comp
		}
	}
	require.False(t, storeComp.Healthy)
	require.Contains(t, storeComp.Err, "connection refused")
}

func TestCheckerTreatsNilCacheAsHealthy(t *testing.T) {
	c := NewChecker(stubProbe{}, stubProbe{}, func(context.Context) bool { return true }, nil, time.Second, observability.NewMetrics("test", "health"))

	report := c.Check(context.Background())
	require.True(t, report.Healthy)
	var cacheComp Component
	for _, comp := range report.Components {
		if comp.Name == "cache" {
			cacheComp = comp
		}
	}
	require.True(t, cacheComp.Healthy)
}

func TestCheckerReportsUnhealthyWhenSchemaInvalid(t *testing.T) {
	c := NewChecker(stubProbe{}, stubProbe{}, func(context.Context) bool { return false }, stubProbe{}, time.Second, observability.NewMetrics("test", "health"))

	report := c.Check(context.Background())
	require.False(t, report.Healthy)
}
