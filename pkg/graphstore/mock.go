package graphstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/developer-mesh/semantic-graph-search/pkg/coreerrors"
)

// edge is a mock-store-only record backing both Link and Neighbors.
type edge struct {
	relType string
	dstName string
	dstLang string
	props   map[string]interface{}
}

// MockStore is a mutex-guarded in-memory GraphStore used by the ingestion
// pipeline and search orchestrator tests, avoiding a real Postgres
// instance. Grounded on pkg/repository/vector/mock.go's in-memory
// map-backed Repository shape.
type MockStore struct {
	mu      sync.RWMutex
	chunks  map[string]*Chunk
	intents map[string]*Intent
	edges   map[string][]edge
	schema  bool
}

var _ GraphStore = (*MockStore)(nil)

// NewMockStore constructs an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{
		chunks:  make(map[string]*Chunk),
		intents: make(map[string]*Intent),
		edges:   make(map[string][]edge),
	}
}

func intentKey(name, lang string) string { return name + "\x00" + lang }

func (m *MockStore) UpsertChunk(_ context.Context, chunk *Chunk) (bool, error) {
	if chunk.ChunkHash == "" {
		return false, coreerrors.Invalid("graphstore.upsert_chunk", "chunk_hash must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertChunkLocked(chunk), nil
}

// upsertChunkLocked does the actual insert-or-update, reporting whether the
// chunk was newly created, for callers (UpsertChunk, UpsertChunkBatch) that
// already hold m.mu and have already validated chunk.ChunkHash.
func (m *MockStore) upsertChunkLocked(chunk *Chunk) bool {
	now := time.Now().UTC()
	if existing, ok := m.chunks[chunk.ChunkHash]; ok {
		existing.UpdatedAt = now
		if chunk.Metadata != nil {
			if existing.Metadata == nil {
				existing.Metadata = map[string]interface{}{}
			}
			for k, v := range chunk.Metadata {
				existing.Metadata[k] = v
			}
		}
		return false
	}
	clone := *chunk
	clone.CreatedAt = now
	clone.UpdatedAt = now
	m.chunks[chunk.ChunkHash] = &clone
	return true
}

func (m *MockStore) UpsertIntent(_ context.Context, intent *Intent) error {
	if intent.Name == "" || intent.Lang == "" {
		return coreerrors.Invalid("graphstore.upsert_intent", "name and lang must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := intentKey(intent.Name, intent.Lang)
	now := time.Now().UTC()
	if existing, ok := m.intents[key]; ok {
		existing.Frequency++
		existing.UpdatedAt = now
		return nil
	}
	clone := *intent
	if clone.Frequency == 0 {
		clone.Frequency = 1
	}
	clone.CreatedAt = now
	clone.UpdatedAt = now
	m.intents[key] = &clone
	return nil
}

func (m *MockStore) Link(_ context.Context, srcChunkHash, relType, dstName, dstLang string, props map[string]interface{}) error {
	if srcChunkHash == "" || relType == "" || dstName == "" {
		return coreerrors.Invalid("graphstore.link", "src, rel_type, and dst must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkLocked(srcChunkHash, relType, dstName, dstLang, props)
	return nil
}

// linkLocked is the validated, lock-held body of Link, shared with
// UpsertChunkBatch so a batch of chunk+link writes commits as one critical
// section, mirroring the single Postgres transaction the real adapter uses.
func (m *MockStore) linkLocked(srcChunkHash, relType, dstName, dstLang string, props map[string]interface{}) {
	existing := m.edges[srcChunkHash]
	for i := range existing {
		if existing[i].relType == relType && existing[i].dstName == dstName && existing[i].dstLang == dstLang {
			if existing[i].props == nil {
				existing[i].props = map[string]interface{}{}
			}
			for k, v := range props {
				existing[i].props[k] = v
			}
			return
		}
	}
	m.edges[srcChunkHash] = append(existing, edge{relType: relType, dstName: dstName, dstLang: dstLang, props: props})
}

// UpsertChunkBatch writes every chunk and link under one lock, the in-memory
// equivalent of the adapter's single-transaction group write.
func (m *MockStore) UpsertChunkBatch(_ context.Context, chunks []*Chunk, links []LinkEdge) ([]bool, error) {
	for _, c := range chunks {
		if c.ChunkHash == "" {
			return nil, coreerrors.Invalid("graphstore.upsert_chunk_batch", "chunk_hash must not be empty")
		}
	}
	for _, l := range links {
		if l.SrcChunkHash == "" || l.RelType == "" || l.DstName == "" {
			return nil, coreerrors.Invalid("graphstore.upsert_chunk_batch", "src, rel_type, and dst must not be empty")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	created := make([]bool, len(chunks))
	for i, c := range chunks {
		created[i] = m.upsertChunkLocked(c)
	}
	for _, l := range links {
		m.linkLocked(l.SrcChunkHash, l.RelType, l.DstName, l.DstLang, l.Props)
	}
	return created, nil
}

// GetChunks returns the stored chunk for every hash that exists, silently
// skipping hashes with no match (the adapter's SELECT ... WHERE chunk_hash =
// ANY(...) behaves the same way).
func (m *MockStore) GetChunks(_ context.Context, hashes []string) ([]Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Chunk
	for _, h := range hashes {
		if c, ok := m.chunks[h]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

// QueryIntents matches text against Intent.name by substring, the in-memory
// stand-in for the adapter's tsvector match, ranked by confidence desc.
func (m *MockStore) QueryIntents(_ context.Context, text, lang string, k int) ([]Intent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(text)
	var out []Intent
	for _, in := range m.intents {
		if lang != "" && in.Lang != lang {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(in.Name), needle) {
			continue
		}
		out = append(out, *in)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Name < out[j].Name
	})
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}

// ChunksDetailing returns every chunk hash holding a DETAILS edge into
// Intent(name, lang), the reverse direction of the edges map.
func (m *MockStore) ChunksDetailing(_ context.Context, name, lang string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for src, edges := range m.edges {
		if _, isChunk := m.chunks[src]; !isChunk {
			continue
		}
		for _, e := range edges {
			if e.relType == "DETAILS" && e.dstName == name && e.dstLang == lang {
				out = append(out, src)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MockStore) VectorQuery(_ context.Context, embedding []float32, k int, filter Filter) ([]ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ScoredChunk
	for hash, c := range m.chunks {
		if !matchesFilter(c, filter) {
			continue
		}
		out = append(out, ScoredChunk{ChunkHash: hash, Score: float64(cosine(embedding, c.Embedding))})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkHash < out[j].ChunkHash
	})
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}

func (m *MockStore) FulltextQuery(_ context.Context, text string, k int, filter Filter) ([]ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(text)
	var out []ScoredChunk
	for hash, c := range m.chunks {
		if !matchesFilter(c, filter) {
			continue
		}
		count := strings.Count(strings.ToLower(c.Content), needle)
		if count == 0 {
			continue
		}
		out = append(out, ScoredChunk{ChunkHash: hash, Score: float64(count)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkHash < out[j].ChunkHash
	})
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}

func matchesFilter(c *Chunk, filter Filter) bool {
	if filter.Language != "" && c.Language != filter.Language {
		return false
	}
	if filter.SourceDoc != "" && c.SourceDoc != filter.SourceDoc {
		return false
	}
	return true
}

func cosine(a, b []float32) float32 {
	var sum float32
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func (m *MockStore) Neighbors(_ context.Context, chunkHash string, depth int, relTypes []string) (Subgraph, error) {
	if depth < 1 {
		depth = 1
	}
	if depth > 3 {
		depth = 3
	}
	allowed := make(map[string]bool, len(relTypes))
	for _, rt := range relTypes {
		allowed[rt] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	sub := Subgraph{Seed: chunkHash}
	visited := map[string]bool{chunkHash: true}
	frontier := []string{chunkHash}

	for d := 1; d <= depth; d++ {
		var next []string
		for _, node := range frontier {
			for _, e := range m.edges[node] {
				if len(allowed) > 0 && !allowed[e.relType] {
					continue
				}
				sub.Neighbors = append(sub.Neighbors, Neighbor{ChunkHash: e.dstName, RelType: e.relType, Depth: d})
				if !visited[e.dstName] {
					visited[e.dstName] = true
					next = append(next, e.dstName)
				}
			}
		}
		frontier = next
	}
	return sub, nil
}

func (m *MockStore) SuggestIntents(_ context.Context, prefix, lang string, limit int) ([]IntentSuggestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix = strings.ToLower(prefix)
	var out []IntentSuggestion
	for _, in := range m.intents {
		if lang != "" && in.Lang != lang {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(in.Name), prefix) {
			continue
		}
		out = append(out, IntentSuggestion{Name: in.Name, Lang: in.Lang, Frequency: in.Frequency})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Name < out[j].Name
	})
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) EnsureSchema(_ context.Context, _ int, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schema = true
	return nil
}

func (m *MockStore) Ping(_ context.Context) error { return nil }
