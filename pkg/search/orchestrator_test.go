package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/developer-mesh/semantic-graph-search/internal/observability"
	"github.com/developer-mesh/semantic-graph-search/pkg/graphstore"
)

type fakeEmbedder struct {
	vec   []float32
	err   error
	delay time.Duration
}

func (f *fakeEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func seedStore(t *testing.T) *graphstore.MockStore {
	t.Helper()
	store := graphstore.NewMockStore()
	ctx := context.Background()

	_, err := store.UpsertChunk(ctx, &graphstore.Chunk{
		ChunkHash: "c1", Content: "deploying a rollback plan", Language: "en", Embedding: []float32{1, 0, 0},
	})
	require.NoError(t, err)
	_, err = store.UpsertChunk(ctx, &graphstore.Chunk{
		ChunkHash: "c2", Content: "database migration steps", Language: "en", Embedding: []float32{0, 1, 0},
	})
	require.NoError(t, err)
	require.NoError(t, store.UpsertIntent(ctx, &graphstore.Intent{Name: "rollback", Lang: "en", Confidence: 0.9}))
	require.NoError(t, store.Link(ctx, "c1", "DETAILS", "rollback", "en", nil))
	return store
}

func TestOrchestratorVectorStrategyRanksBySimilarity(t *testing.T) {
	store := seedStore(t)
	o := NewOrchestrator(store, &fakeEmbedder{vec: []float32{1, 0, 0}}, time.Second, 60, observability.NewNoopLogger(), observability.NewMetrics("test", "search"))

	resp, err := o.Search(context.Background(), Request{Query: "rollback", K: 5, Strategy: StrategyVector})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	require.Equal(t, "c1", resp.Results[0].ChunkHash)
	require.Equal(t, "deploying a rollback plan", resp.Results[0].Content)
	require.Equal(t, "en", resp.Results[0].Language)
	require.Equal(t, StrategyVector, resp.StrategyUsed)
	require.Equal(t, len(resp.Results), resp.TotalResults)
}

func TestOrchestratorFulltextStrategyMatchesContent(t *testing.T) {
	store := seedStore(t)
	o := NewOrchestrator(store, &fakeEmbedder{vec: []float32{1, 0, 0}}, time.Second, 60, observability.NewNoopLogger(), observability.NewMetrics("test", "search"))

	resp, err := o.Search(context.Background(), Request{Query: "migration", K: 5, Strategy: StrategyFulltext})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	require.Equal(t, "c2", resp.Results[0].ChunkHash)
}

func TestOrchestratorHybridStrategyFusesBothLists(t *testing.T) {
	store := seedStore(t)
	o := NewOrchestrator(store, &fakeEmbedder{vec: []float32{1, 0, 0}}, time.Second, 60, observability.NewNoopLogger(), observability.NewMetrics("test", "search"))

	resp, err := o.Search(context.Background(), Request{Query: "rollback", K: 5, Strategy: StrategyHybrid})
	require.NoError(t, err)
	require.False(t, resp.Partial)
	require.NotEmpty(t, resp.Results)
}

func TestOrchestratorIntentStrategyWeightsByConfidenceAndVectorScore(t *testing.T) {
	store := seedStore(t)
	o := NewOrchestrator(store, &fakeEmbedder{vec: []float32{1, 0, 0}}, time.Second, 60, observability.NewNoopLogger(), observability.NewMetrics("test", "search"))

	resp, err := o.Search(context.Background(), Request{Query: "rollback", K: 5, Strategy: StrategyIntent})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	require.Equal(t, "c1", resp.Results[0].ChunkHash)
	require.InDelta(t, 0.9, resp.Results[0].Score, 1e-9)
}

func TestOrchestratorIntentStrategyReturnsEmptyWhenNoIntentMatches(t *testing.T) {
	store := seedStore(t)
	o := NewOrchestrator(store, &fakeEmbedder{vec: []float32{1, 0, 0}}, time.Second, 60, observability.NewNoopLogger(), observability.NewMetrics("test", "search"))

	resp, err := o.Search(context.Background(), Request{Query: "nonexistent-intent-xyz", K: 5, Strategy: StrategyIntent})
	require.NoError(t, err)
	require.Empty(t, resp.Results)
}

func TestOrchestratorGraphExpansionAttachesNeighborsWithoutReranking(t *testing.T) {
	store := seedStore(t)
	o := NewOrchestrator(store, &fakeEmbedder{vec: []float32{1, 0, 0}}, time.Second, 60, observability.NewNoopLogger(), observability.NewMetrics("test", "search"))

	resp, err := o.Search(context.Background(), Request{Query: "rollback", K: 5, Strategy: StrategyVector, ExpandGraph: true, GraphDepth: 1})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	require.Equal(t, "c1", resp.Results[0].ChunkHash)
	require.NotEmpty(t, resp.Results[0].RelatedNodes)
	require.Equal(t, "rollback", resp.Results[0].RelatedNodes[0].ChunkHash)
}

func TestOrchestratorHybridReturnsPartialWhenOneSubQueryIsSlow(t *testing.T) {
	store := seedStore(t)
	o := NewOrchestrator(store, &fakeEmbedder{vec: []float32{1, 0, 0}, delay: 200 * time.Millisecond}, 50*time.Millisecond, 60, observability.NewNoopLogger(), observability.NewMetrics("test", "search"))

	resp, err := o.Search(context.Background(), Request{Query: "migration", K: 5, Strategy: StrategyHybrid})
	require.NoError(t, err)
	require.True(t, resp.Partial)
	require.Equal(t, "c2", resp.Results[0].ChunkHash)
}

func TestOrchestratorHybridFallsBackToFulltextWhenEmbeddingFails(t *testing.T) {
	store := seedStore(t)
	o := NewOrchestrator(store, &fakeEmbedder{err: errors.New("model down")}, time.Second, 60, observability.NewNoopLogger(), observability.NewMetrics("test", "search"))

	resp, err := o.Search(context.Background(), Request{Query: "migration", K: 5, Strategy: StrategyHybrid})
	require.NoError(t, err)
	require.True(t, resp.Partial)
	require.Equal(t, "c2", resp.Results[0].ChunkHash)
}

func TestOrchestratorRejectsEmptyQuery(t *testing.T) {
	store := seedStore(t)
	o := NewOrchestrator(store, &fakeEmbedder{vec: []float32{1, 0, 0}}, time.Second, 60, observability.NewNoopLogger(), observability.NewMetrics("test", "search"))

	_, err := o.Search(context.Background(), Request{Query: "", Strategy: StrategyVector})
	require.Error(t, err)
}

func TestOrchestratorApplyMinConfidenceFiltersLowScores(t *testing.T) {
	store := seedStore(t)
	// An orthogonal query vector scores 0 cosine similarity against both
	// seeded chunks, so any positive MinConfidence filters everything out.
	o := NewOrchestrator(store, &fakeEmbedder{vec: []float32{0, 0, 1}}, time.Second, 60, observability.NewNoopLogger(), observability.NewMetrics("test", "search"))

	resp, err := o.Search(context.Background(), Request{Query: "rollback", K: 5, Strategy: StrategyVector, Filters: Filters{MinConfidence: 0.5}})
	require.NoError(t, err)
	require.Empty(t, resp.Results)
}
