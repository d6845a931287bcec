// Package graphstore adapts a property graph modeled over PostgreSQL (nodes
// as tables, edges as join tables, pgvector for the vector index) to the
// typed high-level operations the ingestion pipeline and search
// orchestrator depend on.
package graphstore

import (
	"context"
	"time"
)

// Chunk is the ContextChunk node of spec.md §3.
type Chunk struct {
	ChunkHash  string                 `db:"chunk_hash"`
	Content    string                 `db:"content"`
	Language   string                 `db:"language"`
	SourceDoc  string                 `db:"source_doc"`
	Position   int                    `db:"position"`
	Confidence float64                `db:"confidence"`
	Embedding  []float32              `db:"-"`
	Metadata   map[string]interface{} `db:"-"`
	CreatedAt  time.Time              `db:"created_at"`
	UpdatedAt  time.Time              `db:"updated_at"`
}

// Intent is the Intent node of spec.md §3, keyed by (name, lang).
type Intent struct {
	Name        string    `db:"name"`
	Lang        string    `db:"lang"`
	Description string    `db:"description"`
	Confidence  float64   `db:"confidence"`
	Category    string    `db:"category"`
	Frequency   int       `db:"frequency"`
	SuccessRate float64   `db:"success_rate"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// ScoredChunk pairs a chunk hash with a similarity score, the common
// return shape of vector_query and fulltext_query.
type ScoredChunk struct {
	ChunkHash string
	Score     float64
}

// Filter narrows vector_query/fulltext_query to a language and/or source
// document; an empty field means "no constraint on this dimension".
type Filter struct {
	Language  string
	SourceDoc string
}

// Neighbor is one edge discovered by a bounded graph walk from a seed
// chunk, carrying the relationship type and the hop depth at which it was
// found.
type Neighbor struct {
	ChunkHash string
	RelType   string
	Depth     int
}

// IntentSuggestion is one autocomplete candidate returned by
// SuggestIntents, ordered by frequency desc then name asc.
type IntentSuggestion struct {
	Name      string
	Lang      string
	Frequency int
}

// LinkEdge is one (chunk)-[:REL]->(intent) edge, the batched form of the
// arguments Link takes, used by UpsertChunkBatch to write a chunk and all
// of its intent links in the same transaction.
type LinkEdge struct {
	SrcChunkHash string
	RelType      string
	DstName      string
	DstLang      string
	Props        map[string]interface{}
}

// Subgraph is the result of neighbors(): the seed plus everything reached
// within the requested depth and relationship-type filter.
type Subgraph struct {
	Seed      string
	Neighbors []Neighbor
}

// GraphStore is the capability interface spec.md §4.2 describes. The
// ingestion pipeline and search orchestrator depend on this interface, not
// on the concrete Postgres adapter, so tests can substitute MockStore.
type GraphStore interface {
	UpsertChunk(ctx context.Context, chunk *Chunk) (created bool, err error)
	UpsertChunkBatch(ctx context.Context, chunks []*Chunk, links []LinkEdge) (created []bool, err error)
	UpsertIntent(ctx context.Context, intent *Intent) error
	Link(ctx context.Context, srcChunkHash, relType, dstName, dstLang string, props map[string]interface{}) error

	VectorQuery(ctx context.Context, embedding []float32, k int, filter Filter) ([]ScoredChunk, error)
	FulltextQuery(ctx context.Context, text string, k int, filter Filter) ([]ScoredChunk, error)
	GetChunks(ctx context.Context, hashes []string) ([]Chunk, error)
	Neighbors(ctx context.Context, chunkHash string, depth int, relTypes []string) (Subgraph, error)
	SuggestIntents(ctx context.Context, prefix, lang string, limit int) ([]IntentSuggestion, error)
	QueryIntents(ctx context.Context, text, lang string, k int) ([]Intent, error)
	ChunksDetailing(ctx context.Context, name, lang string) ([]string, error)

	EnsureSchema(ctx context.Context, dim int, timeout time.Duration) error
	Ping(ctx context.Context) error
}
