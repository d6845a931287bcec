package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/developer-mesh/semantic-graph-search/internal/observability"
	"github.com/developer-mesh/semantic-graph-search/pkg/embedding"
	"github.com/developer-mesh/semantic-graph-search/pkg/graphstore"
)

// ChunkResult reports the outcome of ingesting one chunk, so a caller can
// see which chunks of a larger document succeeded independently of the
// others, per spec.md §4.4's per-chunk failure semantics. Created is only
// meaningful when Err is nil: true means the chunk_hash was new, false
// means it already existed (the idempotent re-ingest case).
type ChunkResult struct {
	ChunkHash string
	Position  int
	Created   bool
	Err       error
}

// Failure is one chunk's failure reason, the shape Summary reports per
// spec.md §6's ingest response contract.
type Failure struct {
	Position int
	Reason   string
}

// Summary aggregates a Pipeline.Ingest call's results into the
// {chunks_ingested, chunks_skipped, failures} shape spec.md §6 requires:
// newly-created chunks are "ingested", chunks matched by hash are
// "skipped" (the idempotent-reingest case), and every per-chunk error is
// reported by position rather than silently folded into either count.
type Summary struct {
	ChunksIngested int
	ChunksSkipped  int
	Failures       []Failure
}

// Summarize reduces raw per-chunk results to the response shape spec.md §6
// names.
func Summarize(results []ChunkResult) Summary {
	var s Summary
	for _, r := range results {
		if r.Err != nil {
			s.Failures = append(s.Failures, Failure{Position: r.Position, Reason: r.Err.Error()})
			continue
		}
		if r.Created {
			s.ChunksIngested++
		} else {
			s.ChunksSkipped++
		}
	}
	return s
}

// Embedder is the subset of embedding.Service the pipeline depends on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

var _ Embedder = (*embedding.Service)(nil)

// Pipeline implements the ingestion algorithm of spec.md §4.4. Grounded on
// apps/rag-loader/internal/indexer/batch_processor.go's createBatches/
// processBatch/processChunkWithRetry shape: chunks are embedded with one
// Embed call each (every call goes through the embedding cache; chunks are
// not batched together for the model) but written to the Graph Store in
// groups of groupSize per transaction, retried once as a group, then
// isolated to per-chunk writes on persistent group failure.
type Pipeline struct {
	chunker   *SentenceChunker
	detector  LanguageDetector
	embedder  Embedder
	store     graphstore.GraphStore
	logger    observability.Logger
	metrics   *observability.Metrics
	groupSize int
}

// NewPipeline constructs the Ingestion Pipeline. groupSize is the number of
// chunks written per Graph Store transaction; values <= 0 fall back to 1
// (one chunk per transaction, the degenerate case of spec.md §4.4's
// grouped-write rule).
func NewPipeline(chunker *SentenceChunker, detector LanguageDetector, embedder Embedder, store graphstore.GraphStore, logger observability.Logger, metrics *observability.Metrics, groupSize int) *Pipeline {
	if groupSize <= 0 {
		groupSize = 1
	}
	return &Pipeline{chunker: chunker, detector: detector, embedder: embedder, store: store, logger: logger, metrics: metrics, groupSize: groupSize}
}

// chunkHash computes sha256(language ‖ "\x1f" ‖ normalized_content),
// hex-encoded, per spec.md §4.4 step 4.
func chunkHash(language, content string) string {
	h := sha256.New()
	h.Write([]byte(language))
	h.Write([]byte{0x1f})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

// preparedChunk is a window that has already been hashed and embedded,
// waiting on its group's transactional write.
type preparedChunk struct {
	position int
	hash     string
	language string
	chunk    *graphstore.Chunk
}

// Ingest turns document into stored, embedded, linked chunks. languageHint
// may be empty, in which case each chunk's language is detected
// independently. intentNames links every chunk to the named Intent nodes
// via a DETAILS edge (the caller is responsible for having ingested those
// Intent nodes first).
func (p *Pipeline) Ingest(ctx context.Context, document, sourceDoc, languageHint string, intentNames []string) []ChunkResult {
	normalized := Normalize(document)
	windows := p.chunker.Chunk(normalized)

	results := make([]ChunkResult, len(windows))
	prepared := make([]preparedChunk, 0, len(windows))
	resultIdx := make([]int, 0, len(windows))

	for i, w := range windows {
		language := languageHint
		if language == "" {
			language = p.detector.Detect(w.Content)
		}
		hash := chunkHash(language, w.Content)
		results[i] = ChunkResult{ChunkHash: hash, Position: w.Position}

		vec, err := p.embedder.Embed(ctx, w.Content)
		if err != nil {
			results[i].Err = fmt.Errorf("embed: %w", err)
			p.recordFailure(hash, w.Position, err)
			continue
		}

		prepared = append(prepared, preparedChunk{
			position: w.Position,
			hash:     hash,
			language: language,
			chunk: &graphstore.Chunk{
				ChunkHash:  hash,
				Content:    w.Content,
				Language:   language,
				SourceDoc:  sourceDoc,
				Position:   w.Position,
				Confidence: 1.0,
				Embedding:  vec,
			},
		})
		resultIdx = append(resultIdx, i)
	}

	for start := 0; start < len(prepared); start += p.groupSize {
		end := start + p.groupSize
		if end > len(prepared) {
			end = len(prepared)
		}
		p.writeGroup(ctx, prepared[start:end], resultIdx[start:end], results, intentNames)
	}

	return results
}

// writeGroup commits one group of chunks and their intent links in a
// single Graph Store transaction. A failed group is retried once in full;
// if it still fails, the group is isolated to independent per-chunk
// writes so one bad chunk cannot sink its siblings, per spec.md §4.4.
func (p *Pipeline) writeGroup(ctx context.Context, group []preparedChunk, idxs []int, results []ChunkResult, intentNames []string) {
	chunks := make([]*graphstore.Chunk, len(group))
	for i, pc := range group {
		chunks[i] = pc.chunk
	}
	links := buildLinks(group, intentNames)

	created, err := p.store.UpsertChunkBatch(ctx, chunks, links)
	if err == nil {
		applyCreated(results, idxs, created)
		return
	}

	p.logger.Warn("chunk group write failed, retrying group", map[string]interface{}{
		"group_size": len(group), "error": err.Error(),
	})
	created, err = p.store.UpsertChunkBatch(ctx, chunks, links)
	if err == nil {
		applyCreated(results, idxs, created)
		return
	}

	p.logger.Warn("chunk group write failed twice, isolating chunks", map[string]interface{}{
		"group_size": len(group), "error": err.Error(),
	})
	p.writeIsolated(ctx, group, idxs, results, intentNames)
}

// writeIsolated falls back to one transaction per chunk, recording each
// chunk's failure independently of its group siblings.
func (p *Pipeline) writeIsolated(ctx context.Context, group []preparedChunk, idxs []int, results []ChunkResult, intentNames []string) {
	for i, pc := range group {
		idx := idxs[i]

		created, err := p.store.UpsertChunk(ctx, pc.chunk)
		if err != nil {
			results[idx].Err = fmt.Errorf("upsert_chunk: %w", err)
			p.recordFailure(pc.hash, pc.position, err)
			continue
		}
		results[idx].Created = created

		for _, name := range intentNames {
			if err := p.store.Link(ctx, pc.hash, "DETAILS", name, pc.language, nil); err != nil {
				results[idx].Err = fmt.Errorf("link %q: %w", name, err)
				p.recordFailure(pc.hash, pc.position, err)
				break
			}
		}
	}
}

func buildLinks(group []preparedChunk, intentNames []string) []graphstore.LinkEdge {
	if len(intentNames) == 0 {
		return nil
	}
	links := make([]graphstore.LinkEdge, 0, len(group)*len(intentNames))
	for _, pc := range group {
		for _, name := range intentNames {
			links = append(links, graphstore.LinkEdge{
				SrcChunkHash: pc.hash, RelType: "DETAILS", DstName: name, DstLang: pc.language,
			})
		}
	}
	return links
}

func applyCreated(results []ChunkResult, idxs []int, created []bool) {
	for i, idx := range idxs {
		results[idx].Created = created[i]
	}
}

func (p *Pipeline) recordFailure(hash string, position int, err error) {
	p.logger.Warn("chunk ingestion failed", map[string]interface{}{
		"chunk_hash": hash, "position": position, "error": err.Error(),
	})
	if p.metrics != nil {
		p.metrics.RecordFailure("ingest.chunk", "ingest_failed")
	}
}
