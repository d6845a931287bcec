// Package search implements the Search Orchestrator: strategy selection,
// parallel sub-query fan-out, Reciprocal Rank Fusion, optional bounded
// graph expansion, and prefix suggestions.
package search

import (
	"github.com/developer-mesh/semantic-graph-search/pkg/graphstore"
)

// Strategy selects which sub-queries a Request runs.
type Strategy string

const (
	StrategyVector   Strategy = "vector"
	StrategyFulltext Strategy = "fulltext"
	StrategyHybrid   Strategy = "hybrid"
	StrategyIntent   Strategy = "intent"
)

// Filters narrows results beyond language, mirroring spec.md §4.5's
// `filters` input.
type Filters struct {
	SourceDoc     string
	MinConfidence float64
}

// Request is a SearchRequest per spec.md §4.5.
type Request struct {
	Query       string
	Language    string
	K           int
	Strategy    Strategy
	Filters     Filters
	ExpandGraph bool
	GraphDepth  int
}

// Result is one ranked hit in a SearchResponse. Content/Language/SourceDoc/
// Position are hydrated from the Graph Store after ranking, per spec.md §6's
// output contract — the ranking strategies themselves only ever produce a
// chunk_hash and score.
type Result struct {
	ChunkHash    string
	Content      string
	Language     string
	SourceDoc    string
	Position     int
	Score        float64
	VectorScore  float64
	RelatedNodes []graphstore.Neighbor
}

// Response is the SearchResponse: ranked results plus whether any hybrid
// sub-query is missing from them (it did not complete before
// query_timeout_ms, or it failed), and the
// top-level metadata spec.md §6 requires (total_results, search_time_ms,
// strategy_used).
type Response struct {
	Results      []Result
	Partial      bool
	TotalResults int
	SearchTimeMs int64
	StrategyUsed Strategy
}

// DefaultRequest returns a Request with spec.md §4.5's stated defaults.
func DefaultRequest(query string) Request {
	return Request{
		Query:      query,
		K:          10,
		Strategy:   StrategyHybrid,
		GraphDepth: 1,
	}
}
