package search

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/developer-mesh/semantic-graph-search/pkg/graphstore"
)

func TestReciprocalRankFusionCombinesAndRanks(t *testing.T) {
	vector := []graphstore.ScoredChunk{
		{ChunkHash: "a", Score: 0.9},
		{ChunkHash: "b", Score: 0.8},
	}
	fulltext := []graphstore.ScoredChunk{
		{ChunkHash: "b", Score: 5},
		{ChunkHash: "c", Score: 4},
	}

	out := reciprocalRankFusion(vector, fulltext, 60, 10)

	require.Len(t, out, 3)
	// b appears in both lists (rank 2 in vector, rank 1 in fulltext) so it
	// must fuse to the highest score.
	require.Equal(t, "b", out[0].chunkHash)
}

func TestReciprocalRankFusionTiesBreakByVectorScoreThenHash(t *testing.T) {
	// Both chunks land at rank 0 of their respective lists, so their fused
	// RRF scores are exactly equal; only "x" carries a vector score, so it
	// must win the tie-break.
	vector := []graphstore.ScoredChunk{{ChunkHash: "x", Score: 0.5}}
	fulltext := []graphstore.ScoredChunk{{ChunkHash: "y", Score: 5}}

	out := reciprocalRankFusion(vector, fulltext, 60, 10)
	require.Len(t, out, 2)
	require.Equal(t, out[0].fusedScore, out[1].fusedScore)
	require.Equal(t, "x", out[0].chunkHash)

	// "b" and "a" swap ranks across the lists and carry the same vector
	// score, so only the lower chunk_hash can break the tie.
	vector = []graphstore.ScoredChunk{{ChunkHash: "b", Score: 0.5}, {ChunkHash: "a", Score: 0.5}}
	fulltext = []graphstore.ScoredChunk{{ChunkHash: "a", Score: 5}, {ChunkHash: "b", Score: 4}}

	out = reciprocalRankFusion(vector, fulltext, 60, 10)
	require.Len(t, out, 2)
	require.Equal(t, out[0].fusedScore, out[1].fusedScore)
	require.Equal(t, "a", out[0].chunkHash)
}

func TestReciprocalRankFusionRespectsK(t *testing.T) {
	vector := []graphstore.ScoredChunk{
		{ChunkHash: "a", Score: 1},
		{ChunkHash: "b", Score: 0.9},
		{ChunkHash: "c", Score: 0.8},
	}
	out := reciprocalRankFusion(vector, nil, 60, 2)
	require.Len(t, out, 2)
}

func TestReciprocalRankFusionEmptyInputsYieldEmptyOutput(t *testing.T) {
	out := reciprocalRankFusion(nil, nil, 60, 10)
	require.Empty(t, out)
}

// TestReciprocalRankFusionLiteralSpecExample reconciles this package's
// 1-indexed-rank formula with spec.md §4.5 property 6's worked example:
// A=[x,y,z], B=[y,x,w], rrf_k=60 fuses to y,x,z,w. x and y tie on fused
// score (each appears at rank 0 in one list and rank 1 in the other,
// symmetric regardless of the +1 rank offset), so y's higher vector score
// decides the order; z and w likewise tie and z's vector score (present,
// since z only appears in the vector list) decides over w's (absent, 0).
func TestReciprocalRankFusionLiteralSpecExample(t *testing.T) {
	vector := []graphstore.ScoredChunk{ // A
		{ChunkHash: "x", Score: 0.5},
		{ChunkHash: "y", Score: 0.9},
		{ChunkHash: "z", Score: 0.3},
	}
	fulltext := []graphstore.ScoredChunk{ // B
		{ChunkHash: "y", Score: 5},
		{ChunkHash: "x", Score: 4},
		{ChunkHash: "w", Score: 3},
	}

	out := reciprocalRankFusion(vector, fulltext, 60, 10)
	require.Len(t, out, 4)

	got := make([]string, len(out))
	for i, e := range out {
		got[i] = e.chunkHash
	}
	require.Equal(t, []string{"y", "x", "z", "w"}, got)
	require.InDelta(t, out[0].fusedScore, out[1].fusedScore, 1e-12)
	require.InDelta(t, out[2].fusedScore, out[3].fusedScore, 1e-12)
}
