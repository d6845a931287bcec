package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/developer-mesh/semantic-graph-search/internal/observability"
	"github.com/developer-mesh/semantic-graph-search/pkg/graphstore"
)

func seedIntents(t *testing.T) *graphstore.MockStore {
	t.Helper()
	store := graphstore.NewMockStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertIntent(ctx, &graphstore.Intent{Name: "deploy", Lang: "en"}))
	require.NoError(t, store.UpsertIntent(ctx, &graphstore.Intent{Name: "deploy", Lang: "en"})) // bumps frequency to 2
	require.NoError(t, store.UpsertIntent(ctx, &graphstore.Intent{Name: "debug", Lang: "en"}))
	require.NoError(t, store.UpsertIntent(ctx, &graphstore.Intent{Name: "rollback", Lang: "en"}))
	return store
}

func TestSuggestOrdersByFrequencyThenName(t *testing.T) {
	store := seedIntents(t)
	o := NewOrchestrator(store, &fakeEmbedder{}, time.Second, 60, observability.NewNoopLogger(), observability.NewMetrics("test", "search"))

	out, err := o.Suggest(context.Background(), "de", "en")
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "deploy", out[0].Name)
	require.Equal(t, 2, out[0].Frequency)
	require.Equal(t, "debug", out[1].Name)
}

func TestSuggestRejectsShortPrefix(t *testing.T) {
	store := seedIntents(t)
	o := NewOrchestrator(store, &fakeEmbedder{}, time.Second, 60, observability.NewNoopLogger(), observability.NewMetrics("test", "search"))

	out, err := o.Suggest(context.Background(), "d", "en")
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestSuggestReturnsEmptyWhenNoPrefixMatches(t *testing.T) {
	store := seedIntents(t)
	o := NewOrchestrator(store, &fakeEmbedder{}, time.Second, 60, observability.NewNoopLogger(), observability.NewMetrics("test", "search"))

	out, err := o.Suggest(context.Background(), "zz", "en")
	require.NoError(t, err)
	require.Empty(t, out)
}
