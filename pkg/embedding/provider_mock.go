package embedding

import (
	"context"
	"crypto/sha256"
	"math"
)

// mockProvider is a deterministic, dependency-free Provider used in tests
// and local development. It derives a unit vector from the hash of each
// input text so the same text always embeds to the same vector. Grounded
// on providers/mock_provider.go.
type mockProvider struct {
	modelID   string
	dimension int
}

// NewMockProvider constructs a deterministic test Provider.
func NewMockProvider(modelID string, dimension int) Provider {
	return &mockProvider{modelID: modelID, dimension: dimension}
}

func (p *mockProvider) ModelID() string { return p.modelID }
func (p *mockProvider) Dimension() int  { return p.dimension }

func (p *mockProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = p.vectorFor(text)
	}
	return out, nil
}

func (p *mockProvider) vectorFor(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, p.dimension)
	var normSq float64
	for i := range vec {
		b := sum[i%len(sum)]
		v := float64(int(b) - 128)
		vec[i] = float32(v)
		normSq += v * v
	}
	norm := float32(math.Sqrt(normSq))
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
