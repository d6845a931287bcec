package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/developer-mesh/semantic-graph-search/internal/observability"
	"github.com/developer-mesh/semantic-graph-search/pkg/coreerrors"
)

// Adapter is the Postgres+pgvector realization of GraphStore. Grounded on
// pkg/database/vector_embedding.go's upsert-via-ON-CONFLICT and
// `::vector`-cast query patterns, generalized from a single `embeddings`
// table to the node/edge tables of spec.md §3.
type Adapter struct {
	pool    *pool
	logger  observability.Logger
	metrics *observability.Metrics
}

// NewAdapter opens a pooled connection to storeURI.
func NewAdapter(storeURI string, poolSize int, acquireTimeout, queryTimeout time.Duration, logger observability.Logger, metrics *observability.Metrics) (*Adapter, error) {
	p, err := newPool(storeURI, poolSize, acquireTimeout, queryTimeout, logger, metrics)
	if err != nil {
		return nil, err
	}
	return &Adapter{pool: p, logger: logger, metrics: metrics}, nil
}

var _ GraphStore = (*Adapter)(nil)

// Close releases the underlying connection pool.
func (a *Adapter) Close() error { return a.pool.Close() }

func (a *Adapter) Ping(ctx context.Context) error { return a.pool.Ping(ctx) }

func formatVector(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// execute_read / execute_write of spec.md §4.2: every statement goes
// through the pool's acquisition semaphore and the transient-retry policy.
func (a *Adapter) executeRead(ctx context.Context, fn func(*sqlx.DB) error) error {
	release, err := a.pool.acquire(ctx)
	if err != nil {
		return coreerrors.Store("graphstore.execute_read", false, err)
	}
	defer release()

	opCtx, cancel := context.WithTimeout(ctx, a.pool.queryTimeout)
	defer cancel()

	err = withRetry(opCtx, func() error { return fn(a.pool.db) })
	if err != nil {
		return coreerrors.Store("graphstore.execute_read", isTransient(err), err)
	}
	return nil
}

func (a *Adapter) executeWrite(ctx context.Context, fn func(*sqlx.Tx) error) error {
	release, err := a.pool.acquire(ctx)
	if err != nil {
		return coreerrors.Store("graphstore.execute_write", false, err)
	}
	defer release()

	opCtx, cancel := context.WithTimeout(ctx, a.pool.queryTimeout)
	defer cancel()

	err = withRetry(opCtx, func() error {
		tx, txErr := a.pool.db.BeginTxx(opCtx, nil)
		if txErr != nil {
			return txErr
		}
		if runErr := fn(tx); runErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				a.logger.Warn("rollback failed", map[string]interface{}{"error": rbErr.Error(), "original_error": runErr.Error()})
			}
			return runErr
		}
		return tx.Commit()
	})
	if err != nil {
		return coreerrors.Store("graphstore.execute_write", isTransient(err), err)
	}
	return nil
}

// upsertChunkSQL is shared by UpsertChunk and UpsertChunkBatch. The
// `RETURNING (xmax = 0)` trick reports whether the row was freshly
// inserted (xmax=0) or matched an existing one via the ON CONFLICT path
// (xmax set by the conflicting update), giving callers the created/skipped
// signal spec.md §4.4's idempotent-ingest scenario needs.
const upsertChunkSQL = `
	INSERT INTO context_chunks (
		chunk_hash, content, language, source_doc, position,
		confidence, embedding, metadata, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7::vector, $8, $9, $10
	)
	ON CONFLICT (chunk_hash) DO UPDATE SET
		updated_at = $10,
		metadata = context_chunks.metadata || $8
	RETURNING (xmax = 0)
`

// UpsertChunk implements spec.md §4.2's MERGE-by-chunk_hash semantics: on
// create every property is set; on a match, only updated_at and metadata
// are refreshed. The returned bool is true when the row was newly created,
// false when an existing chunk_hash was matched.
func (a *Adapter) UpsertChunk(ctx context.Context, chunk *Chunk) (bool, error) {
	if chunk.ChunkHash == "" {
		return false, coreerrors.Invalid("graphstore.upsert_chunk", "chunk_hash must not be empty")
	}
	now := time.Now().UTC()
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = now
	}
	chunk.UpdatedAt = now

	var created bool
	err := a.executeWrite(ctx, func(tx *sqlx.Tx) error {
		row := tx.QueryRowContext(ctx, upsertChunkSQL,
			chunk.ChunkHash, chunk.Content, chunk.Language, chunk.SourceDoc, chunk.Position,
			chunk.Confidence, formatVector(chunk.Embedding), metadataJSON(chunk.Metadata),
			chunk.CreatedAt, chunk.UpdatedAt,
		)
		return row.Scan(&created)
	})
	return created, err
}

// UpsertChunkBatch writes a group of chunks and their intent links in a
// single transaction, per spec.md §4.4's "groups of K per transaction"
// bulk-ingest requirement: the whole group commits or rolls back together.
// Callers isolate chunks one at a time (via UpsertChunk/Link) after a
// group write fails twice.
func (a *Adapter) UpsertChunkBatch(ctx context.Context, chunks []*Chunk, links []LinkEdge) ([]bool, error) {
	for _, chunk := range chunks {
		if chunk.ChunkHash == "" {
			return nil, coreerrors.Invalid("graphstore.upsert_chunk_batch", "chunk_hash must not be empty")
		}
	}
	for _, link := range links {
		if link.SrcChunkHash == "" || link.RelType == "" || link.DstName == "" {
			return nil, coreerrors.Invalid("graphstore.upsert_chunk_batch", "link fields must not be empty")
		}
	}

	now := time.Now().UTC()
	created := make([]bool, len(chunks))
	err := a.executeWrite(ctx, func(tx *sqlx.Tx) error {
		for i, chunk := range chunks {
			if chunk.CreatedAt.IsZero() {
				chunk.CreatedAt = now
			}
			chunk.UpdatedAt = now
			row := tx.QueryRowContext(ctx, upsertChunkSQL,
				chunk.ChunkHash, chunk.Content, chunk.Language, chunk.SourceDoc, chunk.Position,
				chunk.Confidence, formatVector(chunk.Embedding), metadataJSON(chunk.Metadata),
				chunk.CreatedAt, chunk.UpdatedAt,
			)
			if err := row.Scan(&created[i]); err != nil {
				return err
			}
		}
		for _, link := range links {
			id := uuid.NewString()
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO chunk_intent_edges (
					id, src_chunk_hash, rel_type, dst_name, dst_lang, props, created_at
				) VALUES (
					$1, $2, $3, $4, $5, $6, $7
				)
				ON CONFLICT (src_chunk_hash, rel_type, dst_name, dst_lang) DO UPDATE SET
					props = chunk_intent_edges.props || $6
			`, id, link.SrcChunkHash, link.RelType, link.DstName, link.DstLang, metadataJSON(link.Props), now); err != nil {
				return err
			}
		}
		return nil
	})
	return created, err
}

// UpsertIntent implements MERGE by (name, lang), incrementing frequency on
// a match rather than overwriting it.
func (a *Adapter) UpsertIntent(ctx context.Context, intent *Intent) error {
	if intent.Name == "" || intent.Lang == "" {
		return coreerrors.Invalid("graphstore.upsert_intent", "name and lang must not be empty")
	}
	now := time.Now().UTC()
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = now
	}
	intent.UpdatedAt = now
	if intent.Frequency == 0 {
		intent.Frequency = 1
	}

	return a.executeWrite(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO intents (
				name, lang, description, confidence, category,
				frequency, success_rate, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9
			)
			ON CONFLICT (name, lang) DO UPDATE SET
				frequency = intents.frequency + 1,
				updated_at = $9
		`,
			intent.Name, intent.Lang, intent.Description, intent.Confidence, intent.Category,
			intent.Frequency, intent.SuccessRate, intent.CreatedAt, intent.UpdatedAt,
		)
		return err
	})
}

// Link MERGEs a relationship between a chunk and an intent, additively
// merging props rather than overwriting them (spec.md §4.2).
func (a *Adapter) Link(ctx context.Context, srcChunkHash, relType, dstName, dstLang string, props map[string]interface{}) error {
	if srcChunkHash == "" || relType == "" || dstName == "" {
		return coreerrors.Invalid("graphstore.link", "src, rel_type, and dst must not be empty")
	}
	id := uuid.NewString()

	return a.executeWrite(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunk_intent_edges (
				id, src_chunk_hash, rel_type, dst_name, dst_lang, props, created_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7
			)
			ON CONFLICT (src_chunk_hash, rel_type, dst_name, dst_lang) DO UPDATE SET
				props = chunk_intent_edges.props || $6
		`, id, srcChunkHash, relType, dstName, dstLang, metadataJSON(props), time.Now().UTC())
		return err
	})
}

// VectorQuery runs the cosine-ANN query over the pgvector index. Score is
// 1 - cosine_distance, in [-1,1].
func (a *Adapter) VectorQuery(ctx context.Context, embedding []float32, k int, filter Filter) ([]ScoredChunk, error) {
	query := `
		SELECT chunk_hash, 1 - (embedding <=> $1::vector) AS score
		FROM context_chunks
		WHERE 1=1
	`
	args := []interface{}{formatVector(embedding)}
	query, args = applyFilter(query, args, filter)
	query += fmt.Sprintf(" ORDER BY score DESC LIMIT $%d", len(args)+1)
	args = append(args, k)

	var out []ScoredChunk
	err := a.executeRead(ctx, func(db *sqlx.DB) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var sc ScoredChunk
			if err := rows.Scan(&sc.ChunkHash, &sc.Score); err != nil {
				return err
			}
			out = append(out, sc)
		}
		return rows.Err()
	})
	return out, err
}

// FulltextQuery runs a tsvector/GIN full-text query, scored by
// ts_rank_cd with no length normalization, so scores are not bounded to
// [0,1]; downstream RRF uses only the rank order.
func (a *Adapter) FulltextQuery(ctx context.Context, text string, k int, filter Filter) ([]ScoredChunk, error) {
	query := `
		SELECT chunk_hash, ts_rank_cd(content_tsv, plainto_tsquery('simple', $1)) AS score
		FROM context_chunks
		WHERE content_tsv @@ plainto_tsquery('simple', $1)
	`
	args := []interface{}{text}
	query, args = applyFilter(query, args, filter)
	query += fmt.Sprintf(" ORDER BY score DESC LIMIT $%d", len(args)+1)
	args = append(args, k)

	var out []ScoredChunk
	err := a.executeRead(ctx, func(db *sqlx.DB) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var sc ScoredChunk
			if err := rows.Scan(&sc.ChunkHash, &sc.Score); err != nil {
				return err
			}
			out = append(out, sc)
		}
		return rows.Err()
	})
	return out, err
}

// GetChunks hydrates the content/language/source_doc/position fields for a
// set of chunk hashes, the lookup vector_query/fulltext_query results feed
// into to build the output contract of spec.md §6 (those two queries only
// ever select chunk_hash and a score).
func (a *Adapter) GetChunks(ctx context.Context, hashes []string) ([]Chunk, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	var out []Chunk
	err := a.executeRead(ctx, func(db *sqlx.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT chunk_hash, content, language, source_doc, position, confidence
			FROM context_chunks
			WHERE chunk_hash = ANY($1)
		`, pq.Array(hashes))
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var c Chunk
			if err := rows.Scan(&c.ChunkHash, &c.Content, &c.Language, &c.SourceDoc, &c.Position, &c.Confidence); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	return out, err
}

func applyFilter(query string, args []interface{}, filter Filter) (string, []interface{}) {
	if filter.Language != "" {
		args = append(args, filter.Language)
		query += fmt.Sprintf(" AND language = $%d", len(args))
	}
	if filter.SourceDoc != "" {
		args = append(args, filter.SourceDoc)
		query += fmt.Sprintf(" AND source_doc = $%d", len(args))
	}
	return query, args
}

// Neighbors performs a bounded breadth-first expansion from chunkHash via
// a recursive CTE, matching spec.md §4.2's bounded-traversal requirement.
// The first hop walks chunk_intent_edges (ContextChunk)-[:DETAILS]->Intent;
// every subsequent hop walks intent_edges (Intent)-[:LEADS_TO]->Intent,
// since those are the only two edge tables a chunk seed can reach into —
// chunk_intent_edges.src_chunk_hash is never a valid dst_name to self-join
// against past the first hop.
func (a *Adapter) Neighbors(ctx context.Context, chunkHash string, depth int, relTypes []string) (Subgraph, error) {
	if depth < 1 {
		depth = 1
	}
	if depth > 3 {
		depth = 3
	}

	query := `
		WITH RECURSIVE walk(dst_name, dst_lang, rel_type, depth) AS (
			SELECT dst_name, dst_lang, rel_type, 1
			FROM chunk_intent_edges
			WHERE src_chunk_hash = $1
			UNION ALL
			SELECT ie.dst_name, ie.dst_lang, 'LEADS_TO', w.depth + 1
			FROM intent_edges ie
			JOIN walk w ON ie.src_name = w.dst_name AND ie.src_lang = w.dst_lang
			WHERE w.depth < $2
		)
		SELECT dst_name, rel_type, depth FROM walk
	`
	args := []interface{}{chunkHash, depth}
	if len(relTypes) > 0 {
		query = strings.Replace(query, "SELECT dst_name, rel_type, depth FROM walk",
			fmt.Sprintf("SELECT dst_name, rel_type, depth FROM walk WHERE rel_type = ANY($%d)", len(args)+1), 1)
		args = append(args, pq.Array(relTypes))
	}

	sub := Subgraph{Seed: chunkHash}
	err := a.executeRead(ctx, func(db *sqlx.DB) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var n Neighbor
			if err := rows.Scan(&n.ChunkHash, &n.RelType, &n.Depth); err != nil {
				return err
			}
			sub.Neighbors = append(sub.Neighbors, n)
		}
		return rows.Err()
	})
	return sub, err
}

// SuggestIntents returns Intent names whose prefix matches, ordered by
// frequency desc then name asc, per spec.md §4.5's suggest operation.
func (a *Adapter) SuggestIntents(ctx context.Context, prefix, lang string, limit int) ([]IntentSuggestion, error) {
	query := `SELECT name, lang, frequency FROM intents WHERE name ILIKE $1`
	args := []interface{}{strings.ReplaceAll(prefix, "%", `\%`) + "%"}
	if lang != "" {
		args = append(args, lang)
		query += fmt.Sprintf(" AND lang = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY frequency DESC, name ASC LIMIT $%d", len(args))

	var out []IntentSuggestion
	err := a.executeRead(ctx, func(db *sqlx.DB) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var s IntentSuggestion
			if err := rows.Scan(&s.Name, &s.Lang, &s.Frequency); err != nil {
				return err
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	return out, err
}

// QueryIntents resolves text against Intent.name via a tsvector full-text
// match (intents.name_tsv), ranked by ts_rank_cd, for the intent search
// strategy of spec.md §4.5.
func (a *Adapter) QueryIntents(ctx context.Context, text, lang string, k int) ([]Intent, error) {
	query := `
		SELECT name, lang, description, confidence, category, frequency, success_rate
		FROM intents
		WHERE name_tsv @@ plainto_tsquery('simple', $1)
	`
	args := []interface{}{text}
	if lang != "" {
		args = append(args, lang)
		query += fmt.Sprintf(" AND lang = $%d", len(args))
	}
	query += fmt.Sprintf(" ORDER BY ts_rank_cd(name_tsv, plainto_tsquery('simple', $1)) DESC LIMIT $%d", len(args)+1)
	args = append(args, k)

	var out []Intent
	err := a.executeRead(ctx, func(db *sqlx.DB) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var in Intent
			if err := rows.Scan(&in.Name, &in.Lang, &in.Description, &in.Confidence, &in.Category, &in.Frequency, &in.SuccessRate); err != nil {
				return err
			}
			out = append(out, in)
		}
		return rows.Err()
	})
	return out, err
}

// ChunksDetailing returns every chunk_hash linked to Intent(name, lang) via
// a DETAILS edge, the reverse direction of Neighbors used by the intent
// search strategy to aggregate chunks within one hop of a matched intent.
func (a *Adapter) ChunksDetailing(ctx context.Context, name, lang string) ([]string, error) {
	var out []string
	err := a.executeRead(ctx, func(db *sqlx.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT src_chunk_hash FROM chunk_intent_edges
			WHERE rel_type = 'DETAILS' AND dst_name = $1 AND dst_lang = $2
		`, name, lang)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var hash string
			if err := rows.Scan(&hash); err != nil {
				return err
			}
			out = append(out, hash)
		}
		return rows.Err()
	})
	return out, err
}

func metadataJSON(m map[string]interface{}) []byte {
	if m == nil {
		m = map[string]interface{}{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}
