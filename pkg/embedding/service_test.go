package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/developer-mesh/semantic-graph-search/internal/observability"
)

func testService(t *testing.T) *Service {
	t.Helper()
	provider := NewMockProvider("mock-v1", 8)
	cache, err := newTwoTierCache(32, nil, time.Minute, 8, 100*time.Millisecond, nil)
	require.NoError(t, err)

	cfg := Config{
		MaxInputChars:      1000,
		BatchSize:          4,
		QueueHighWatermark: 16,
		ModelTimeout:       time.Second,
	}
	svc := NewService(provider, cache, cfg, observability.NewNoopLogger(), observability.NewMetrics("test", "embedding"))
	t.Cleanup(svc.Close)
	return svc
}

func TestServiceEmbedRejectsEmptyText(t *testing.T) {
	svc := testService(t)
	_, err := svc.Embed(context.Background(), "")
	require.Error(t, err)
}

func TestServiceEmbedRejectsOversizeText(t *testing.T) {
	svc := testService(t)
	big := make([]byte, 2000)
	for i := range big {
		big[i] = 'a'
	}
	_, err := svc.Embed(context.Background(), string(big))
	require.Error(t, err)
}

func TestServiceEmbedIsDeterministicAndCached(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	v1, err := svc.Embed(ctx, "hello world")
	require.NoError(t, err)
	v2, err := svc.Embed(ctx, "hello world")
	require.NoError(t, err)
	require.Equal(t, v1, v2)
}

func TestServiceEmbedBatchPreservesOrder(t *testing.T) {
	svc := testService(t)
	texts := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	vecs, err := svc.EmbedBatch(context.Background(), texts, true)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	for i, text := range texts {
		single, err := svc.Embed(context.Background(), text)
		require.NoError(t, err)
		require.Equal(t, single, vecs[i])
	}
}

func TestServiceEmbedBatchStrictFailsOnEmptyElement(t *testing.T) {
	svc := testService(t)
	_, err := svc.EmbedBatch(context.Background(), []string{"a", "", "c"}, true)
	require.Error(t, err)
}

func TestServiceEmbedBatchNonStrictSubstitutesZeroVector(t *testing.T) {
	svc := testService(t)
	vecs, err := svc.EmbedBatch(context.Background(), []string{"a", "", "c"}, false)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs[1] {
		require.Equal(t, float32(0), v)
	}
}

func TestSimilarityOfIdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 0, 0}
	require.InDelta(t, float32(1), Similarity(v, v), 1e-6)
}

func TestMostSimilarOrdersDescendingBreaksTiesByIndex(t *testing.T) {
	query := []float32{1, 0}
	candidates := [][]float32{
		{0, 1},
		{1, 0},
		{1, 0},
		{-1, 0},
	}
	top := MostSimilar(query, candidates, 2)
	require.Len(t, top, 2)
	require.Equal(t, 1, top[0].Index)
	require.Equal(t, 2, top[1].Index)
}

func TestServiceNoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t)
	svc := NewService(
		NewMockProvider("mock-v1", 4),
		nil,
		Config{MaxInputChars: 100, BatchSize: 2, QueueHighWatermark: 4, ModelTimeout: time.Second},
		observability.NewNoopLogger(),
		observability.NewMetrics("test", "leak"),
	)
	_, err := svc.Embed(context.Background(), "check")
	require.NoError(t, err)
	svc.Close()
}
