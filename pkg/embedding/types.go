// Package embedding implements the Embedding Service: it turns text into
// fixed-dimension, L2-normalized vectors, batches requests, and caches
// single-text results in a compressed KV store.
package embedding

import "context"

// Provider is the capability interface a model backend must satisfy.
// Implementations are non-reentrant: the Service serializes all calls to
// a Provider through a single executor.
type Provider interface {
	// ModelID identifies the backing model, used as part of the cache key.
	ModelID() string
	// Dimension returns D, the fixed output dimension of this model.
	Dimension() int
	// Embed computes embeddings for a batch of non-empty texts, returning
	// vectors in the same order. The caller has already validated length.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Cache is the capability interface for the single-text embedding cache.
// Absence (a nil Cache) degrades performance but never correctness.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32)
}

// Candidate pairs an index into the original candidate slice with a score,
// used by MostSimilar.
type Candidate struct {
	Index int
	Score float32
}
