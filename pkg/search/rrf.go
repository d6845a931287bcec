package search

import (
	"sort"

	"github.com/developer-mesh/semantic-graph-search/pkg/graphstore"
)

// rrfEntry accumulates the fused RRF score for one chunk plus the raw
// vector score needed for the tie-break rule.
type rrfEntry struct {
	chunkHash   string
	fusedScore  float64
	vectorScore float64
	hasVector   bool
}

// reciprocalRankFusion combines vector and fulltext result lists into one
// ranked list: for each chunk present in either list,
// score = Σ 1/(rank + rrfK), using a 1-indexed rank (rank+1 below, since
// Go's range yields a 0-indexed rank). This differs from spec.md §4.5's
// literal 0-indexed phrasing by a constant +1 per list, which shifts every
// score but never changes which chunks tie with which — the property-6
// worked example (A=[x,y,z], B=[y,x,w], rrf_k=60 fusing to y,x,z,w) comes
// out identical either way, see TestReciprocalRankFusionLiteralSpecExample.
// Ties break by higher vector score, then lower chunk_hash
// lexicographically, per spec.md §4.5. Grounded on and simplified from
// pkg/rag/retrieval/hybrid.go's reciprocalRankFusion — dropped its
// vectorWeight/bm25Weight/importanceWeight terms since spec.md defines no
// such weighting config key; this is pure unweighted RRF.
func reciprocalRankFusion(vectorResults, fulltextResults []graphstore.ScoredChunk, rrfK int, k int) []rrfEntry {
	entries := make(map[string]*rrfEntry)

	get := func(hash string) *rrfEntry {
		e, ok := entries[hash]
		if !ok {
			e = &rrfEntry{chunkHash: hash}
			entries[hash] = e
		}
		return e
	}

	for rank, r := range vectorResults {
		e := get(r.ChunkHash)
		e.fusedScore += 1.0 / float64(rank+1+rrfK)
		e.vectorScore = r.Score
		e.hasVector = true
	}
	for rank, r := range fulltextResults {
		e := get(r.ChunkHash)
		e.fusedScore += 1.0 / float64(rank+1+rrfK)
	}

	out := make([]rrfEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].fusedScore != out[j].fusedScore {
			return out[i].fusedScore > out[j].fusedScore
		}
		if out[i].vectorScore != out[j].vectorScore {
			return out[i].vectorScore > out[j].vectorScore
		}
		return out[i].chunkHash < out[j].chunkHash
	})

	if k < len(out) {
		out = out[:k]
	}
	return out
}
