package search

import (
	"context"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/developer-mesh/semantic-graph-search/internal/observability"
	"github.com/developer-mesh/semantic-graph-search/pkg/coreerrors"
	"github.com/developer-mesh/semantic-graph-search/pkg/embedding"
	"github.com/developer-mesh/semantic-graph-search/pkg/graphstore"
)

// Embedder is the subset of embedding.Service the orchestrator depends on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

var _ Embedder = (*embedding.Service)(nil)

// Orchestrator turns a Request into a ranked Response. It holds no
// persistent state of its own, only the query_timeout_ms/rrf_k
// configuration and handles to its two collaborators, per spec.md §3's
// ownership rule ("the Orchestrator owns no persistent state, only
// transient per-query buffers").
type Orchestrator struct {
	store        graphstore.GraphStore
	embedder     Embedder
	queryTimeout time.Duration
	rrfK         int
	logger       observability.Logger
	metrics      *observability.Metrics
}

// NewOrchestrator constructs the Search Orchestrator.
func NewOrchestrator(store graphstore.GraphStore, embedder Embedder, queryTimeout time.Duration, rrfK int, logger observability.Logger, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{store: store, embedder: embedder, queryTimeout: queryTimeout, rrfK: rrfK, logger: logger, metrics: metrics}
}

// Search executes req, selecting the requested strategy. All variants
// honor req's deadline; hybrid specifically fans vector and fulltext out
// concurrently and awaits both within query_timeout_ms.
func (o *Orchestrator) Search(ctx context.Context, req Request) (Response, error) {
	if req.Query == "" || utf8.RuneCountInString(req.Query) > 1000 {
		return Response{}, coreerrors.Invalid("search.search", "query must be 1..1000 chars")
	}
	if req.K <= 0 || req.K > 100 {
		req.K = 10
	}
	if req.Strategy == "" {
		req.Strategy = StrategyHybrid
	}
	if req.GraphDepth <= 0 || req.GraphDepth > 3 {
		req.GraphDepth = 1
	}

	stop := o.metrics.StartTimer("search.search")
	defer func() { stop("ok") }()

	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, o.queryTimeout)
	defer cancel()

	filter := graphstore.Filter{Language: req.Language, SourceDoc: req.Filters.SourceDoc}

	var resp Response
	var err error
	switch req.Strategy {
	case StrategyVector:
		resp, err = o.searchVector(ctx, req, filter)
	case StrategyFulltext:
		resp, err = o.searchFulltext(ctx, req, filter)
	case StrategyIntent:
		resp, err = o.searchIntent(ctx, req, filter)
	case StrategyHybrid:
		resp, err = o.searchHybrid(ctx, req, filter)
	default:
		return Response{}, coreerrors.Invalid("search.search", fmt.Sprintf("unknown strategy %q", req.Strategy))
	}
	if err != nil {
		return Response{}, err
	}

	resp = applyMinConfidence(resp, req.Filters.MinConfidence)
	o.hydrate(ctx, &resp)

	if req.ExpandGraph {
		o.expand(ctx, &resp, req.GraphDepth)
	}

	resp.TotalResults = len(resp.Results)
	resp.SearchTimeMs = time.Since(start).Milliseconds()
	resp.StrategyUsed = req.Strategy
	return resp, nil
}

// hydrate fills in content/language/source_doc/position for every result
// from the Graph Store, since every ranking strategy only ever produces a
// chunk_hash and score — spec.md §6 requires the full chunk body in the
// response.
func (o *Orchestrator) hydrate(ctx context.Context, resp *Response) {
	if len(resp.Results) == 0 {
		return
	}
	hashes := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		hashes[i] = r.ChunkHash
	}
	chunks, err := o.store.GetChunks(ctx, hashes)
	if err != nil {
		o.logger.Warn("result hydration failed", map[string]interface{}{"error": err.Error()})
		return
	}
	byHash := make(map[string]graphstore.Chunk, len(chunks))
	for _, c := range chunks {
		byHash[c.ChunkHash] = c
	}
	for i, r := range resp.Results {
		if c, ok := byHash[r.ChunkHash]; ok {
			resp.Results[i].Content = c.Content
			resp.Results[i].Language = c.Language
			resp.Results[i].SourceDoc = c.SourceDoc
			resp.Results[i].Position = c.Position
		}
	}
}

func applyMinConfidence(resp Response, minConfidence float64) Response {
	if minConfidence <= 0 {
		return resp
	}
	filtered := resp.Results[:0]
	for _, r := range resp.Results {
		if r.VectorScore >= minConfidence || r.Score >= minConfidence {
			filtered = append(filtered, r)
		}
	}
	resp.Results = filtered
	return resp
}

func (o *Orchestrator) searchVector(ctx context.Context, req Request, filter graphstore.Filter) (Response, error) {
	vec, err := o.embedder.Embed(ctx, req.Query)
	if err != nil {
		return Response{}, err
	}
	hits, err := o.store.VectorQuery(ctx, vec, req.K, filter)
	if err != nil {
		return Response{}, err
	}
	return Response{Results: scoredChunksToResults(hits)}, nil
}

func (o *Orchestrator) searchFulltext(ctx context.Context, req Request, filter graphstore.Filter) (Response, error) {
	hits, err := o.store.FulltextQuery(ctx, req.Query, req.K, filter)
	if err != nil {
		return Response{}, err
	}
	return Response{Results: scoredChunksToResults(hits)}, nil
}

func scoredChunksToResults(hits []graphstore.ScoredChunk) []Result {
	out := make([]Result, len(hits))
	for i, h := range hits {
		out[i] = Result{ChunkHash: h.ChunkHash, Score: h.Score, VectorScore: h.Score}
	}
	return out
}

// searchHybrid runs vector and fulltext concurrently and fuses them with
// RRF. On a context deadline, whichever sub-result completed is returned
// with Partial=true; if neither completed, Timeout is surfaced.
func (o *Orchestrator) searchHybrid(ctx context.Context, req Request, filter graphstore.Filter) (Response, error) {
	doubleK := req.K * 2

	type vecResult struct {
		hits []graphstore.ScoredChunk
		err  error
	}
	type textResult struct {
		hits []graphstore.ScoredChunk
		err  error
	}

	vecCh := make(chan vecResult, 1)
	textCh := make(chan textResult, 1)

	go func() {
		vec, err := o.embedder.Embed(ctx, req.Query)
		if err != nil {
			vecCh <- vecResult{err: err}
			return
		}
		hits, err := o.store.VectorQuery(ctx, vec, doubleK, filter)
		vecCh <- vecResult{hits: hits, err: err}
	}()
	go func() {
		hits, err := o.store.FulltextQuery(ctx, req.Query, doubleK, filter)
		textCh <- textResult{hits: hits, err: err}
	}()

	var vecRes vecResult
	var textRes textResult
	var gotVec, gotText bool

	for i := 0; i < 2; i++ {
		select {
		case vecRes = <-vecCh:
			gotVec = true
		case textRes = <-textCh:
			gotText = true
		case <-ctx.Done():
			if !gotVec && !gotText {
				return Response{}, coreerrors.New(coreerrors.KindTimeout, "search.hybrid", ctx.Err())
			}
			return o.fusePartial(gotVec, vecRes, gotText, textRes, req.K), nil
		}
	}

	if vecRes.err != nil && textRes.err != nil {
		return Response{}, fmt.Errorf("hybrid search: vector: %v, fulltext: %v", vecRes.err, textRes.err)
	}
	if vecRes.err != nil {
		return Response{Results: scoredChunksToResults(textRes.hits), Partial: true}, nil
	}
	if textRes.err != nil {
		return Response{Results: scoredChunksToResults(vecRes.hits), Partial: true}, nil
	}

	fused := reciprocalRankFusion(vecRes.hits, textRes.hits, o.rrfK, req.K)
	return Response{Results: rrfEntriesToResults(fused)}, nil
}

func (o *Orchestrator) fusePartial(gotVec bool, vecRes struct {
	hits []graphstore.ScoredChunk
	err  error
}, gotText bool, textRes struct {
	hits []graphstore.ScoredChunk
	err  error
}, k int) Response {
	if gotVec && vecRes.err == nil {
		hits := vecRes.hits
		if k < len(hits) {
			hits = hits[:k]
		}
		return Response{Results: scoredChunksToResults(hits), Partial: true}
	}
	if gotText && textRes.err == nil {
		hits := textRes.hits
		if k < len(hits) {
			hits = hits[:k]
		}
		return Response{Results: scoredChunksToResults(hits), Partial: true}
	}
	return Response{Partial: true}
}

func rrfEntriesToResults(entries []rrfEntry) []Result {
	out := make([]Result, len(entries))
	for i, e := range entries {
		out[i] = Result{ChunkHash: e.chunkHash, Score: e.fusedScore, VectorScore: e.vectorScore}
	}
	return out
}

// intentCandidateMultiplier bounds how many Intent nodes a query resolves
// to before expanding each one's DETAILS edges; spec.md §4.5 names no
// separate limit for the intent stage, so this reuses req.K as-is.
const intentCandidateMultiplier = 1

// searchIntent resolves the query against Intent.name, walks each matched
// intent's DETAILS edges to the ContextChunks it details, and ranks the
// aggregated chunk set by intent.confidence × chunk vector score, per
// spec.md §4.5's intent strategy. A chunk reachable from more than one
// matched intent keeps its highest score.
func (o *Orchestrator) searchIntent(ctx context.Context, req Request, filter graphstore.Filter) (Response, error) {
	intents, err := o.store.QueryIntents(ctx, req.Query, req.Language, req.K*intentCandidateMultiplier)
	if err != nil {
		return Response{}, err
	}
	if len(intents) == 0 {
		return Response{}, nil
	}

	vec, err := o.embedder.Embed(ctx, req.Query)
	if err != nil {
		return Response{}, err
	}
	vecHits, err := o.store.VectorQuery(ctx, vec, req.K*len(intents)*2, filter)
	if err != nil {
		return Response{}, err
	}
	vecScore := make(map[string]float64, len(vecHits))
	for _, h := range vecHits {
		vecScore[h.ChunkHash] = h.Score
	}

	best := make(map[string]Result)
	for _, in := range intents {
		hashes, err := o.store.ChunksDetailing(ctx, in.Name, in.Lang)
		if err != nil {
			return Response{}, err
		}
		for _, hash := range hashes {
			vs := vecScore[hash]
			score := in.Confidence * vs
			if existing, ok := best[hash]; !ok || score > existing.Score {
				best[hash] = Result{ChunkHash: hash, Score: score, VectorScore: vs}
			}
		}
	}

	results := make([]Result, 0, len(best))
	for _, r := range best {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkHash < results[j].ChunkHash
	})
	if req.K < len(results) {
		results = results[:req.K]
	}
	return Response{Results: results}, nil
}

// expand fetches neighbors up to depth for each top-k result and attaches
// them as related_nodes; it never re-ranks the top-k list, per spec.md
// §4.5's "Graph expansion" rule.
func (o *Orchestrator) expand(ctx context.Context, resp *Response, depth int) {
	for i := range resp.Results {
		sub, err := o.store.Neighbors(ctx, resp.Results[i].ChunkHash, depth, []string{"DETAILS", "LEADS_TO"})
		if err != nil {
			o.logger.Warn("graph expansion failed", map[string]interface{}{"chunk_hash": resp.Results[i].ChunkHash, "error": err.Error()})
			continue
		}
		resp.Results[i].RelatedNodes = sub.Neighbors
	}
}
