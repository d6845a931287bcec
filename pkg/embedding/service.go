package embedding

import (
	"context"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"

	"github.com/developer-mesh/semantic-graph-search/internal/observability"
	"github.com/developer-mesh/semantic-graph-search/pkg/coreerrors"
)

// normalizeFunc is supplied by the ingestion package so the cache key
// matches whatever text actually reached the model; the embedding package
// itself stays ignorant of Unicode normalization rules.
type normalizeFunc func(string) string

// Config carries the subset of internal/config.Config the Service needs,
// decoupled from the config package to avoid an import cycle.
type Config struct {
	MaxInputChars      int
	BatchSize          int
	QueueHighWatermark int
	ModelTimeout       time.Duration
}

// Service is the Embedding Service of spec.md §4.1: it wraps a Provider
// with batching, caching, retry, and circuit-breaking. Grounded on
// pkg/embedding's service composition (provider + cache + resilience
// wrapped behind one façade).
type Service struct {
	provider  Provider
	cache     Cache
	exec      *executor
	breaker   *gobreaker.CircuitBreaker
	normalize normalizeFunc
	cfg       Config
	logger    observability.Logger
	metrics   *observability.Metrics

	initOnce sync.Once
	initErr  error
}

// NewService constructs a Service. cache may be nil.
func NewService(provider Provider, cache Cache, cfg Config, logger observability.Logger, metrics *observability.Metrics) *Service {
	breaker := newProviderBreaker(provider.ModelID(), 5, 30*time.Second)
	return &Service{
		provider:  provider,
		cache:     cache,
		exec:      newExecutor(provider, cfg.QueueHighWatermark*2, cfg.QueueHighWatermark),
		breaker:   breaker,
		normalize: func(s string) string { return s },
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// SetNormalizer overrides how text is normalized before hashing into a
// cache key. Call this once during composition with the ingestion
// package's normalizer.
func (s *Service) SetNormalizer(fn normalizeFunc) {
	if fn != nil {
		s.normalize = fn
	}
}

// Initialize loads the model once; repeated calls are idempotent, per
// spec.md §4.1.
func (s *Service) Initialize(ctx context.Context) error {
	s.initOnce.Do(func() {
		_, s.initErr = s.provider.Embed(ctx, []string{"warmup"})
	})
	return s.initErr
}

// Close stops the background executor goroutine.
func (s *Service) Close() {
	s.exec.Close()
}

// Embed computes (or retrieves from cache) a single text's embedding.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, coreerrors.Invalid("embedding.embed", "text must not be empty")
	}
	if utf8.RuneCountInString(text) > s.cfg.MaxInputChars {
		return nil, coreerrors.Invalid("embedding.embed", "text exceeds max_input_chars")
	}

	stop := s.metrics.StartTimer("embedding.embed")
	vecs, err := s.embedBatchInternal(ctx, []string{text}, false)
	if err != nil {
		stop("error")
		return nil, err
	}
	stop("ok")
	return vecs[0], nil
}

// EmbedBatch computes embeddings for a batch of texts in input order. When
// strict is true, an empty element fails the whole call with InvalidInput;
// otherwise a zero vector is substituted and flagged via metrics.
func (s *Service) EmbedBatch(ctx context.Context, texts []string, strict bool) ([][]float32, error) {
	return s.embedBatchInternal(ctx, texts, strict)
}

func (s *Service) embedBatchInternal(ctx context.Context, texts []string, strict bool) ([][]float32, error) {
	result := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if text == "" {
			if strict {
				return nil, coreerrors.Invalid("embedding.embed_batch", "element is empty")
			}
			result[i] = make([]float32, s.provider.Dimension())
			s.metrics.RecordFailure("embedding.embed_batch", "empty_input_substituted")
			continue
		}

		key := cacheKey(s.provider.ModelID(), s.normalize(text))
		keys[i] = key

		if s.cache != nil {
			if vec, ok := s.cache.Get(ctx, key); ok {
				result[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	for start := 0; start < len(missTexts); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(missTexts) {
			end = len(missTexts)
		}
		sub := missTexts[start:end]
		subIdx := missIdx[start:end]

		vecs, err := s.computeWithResilience(ctx, sub)
		if err != nil {
			return nil, err
		}
		for j, idx := range subIdx {
			result[idx] = vecs[j]
			if s.cache != nil {
				s.cache.Set(ctx, keys[idx], vecs[j])
			}
		}
	}

	return result, nil
}

// computeWithResilience runs one sub-batch through the circuit breaker,
// with a single retry on failure, surfacing ModelUnavailable when the
// breaker is open and EmbeddingFailed otherwise — spec.md §7.
func (s *Service) computeWithResilience(ctx context.Context, texts []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ModelTimeout)
	defer cancel()

	var vecs [][]float32
	op := func() error {
		out, err := s.exec.submit(callCtx, texts)
		if err != nil {
			return err
		}
		vecs = out
		return nil
	}

	_, breakerErr := s.breaker.Execute(func() (interface{}, error) {
		return nil, retryOnce(callCtx, op)
	})
	if breakerErr != nil {
		if isBreakerOpen(breakerErr) {
			s.logger.Warn("embedding model circuit open", map[string]interface{}{"model_id": s.provider.ModelID()})
			return nil, coreerrors.New(coreerrors.KindModelUnavailable, "embedding.compute", breakerErr)
		}
		return nil, coreerrors.New(coreerrors.KindEmbeddingFailed, "embedding.compute", breakerErr)
	}
	return vecs, nil
}

// Similarity computes cosine similarity between two equal-length,
// L2-normalized vectors as their inner product.
func Similarity(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// MostSimilar returns the k highest-scoring candidates in descending
// score order, ties broken by lower index, per spec.md §4.1.
func MostSimilar(query []float32, candidates [][]float32, k int) []Candidate {
	scored := make([]Candidate, len(candidates))
	for i, c := range candidates {
		scored[i] = Candidate{Index: i, Score: Similarity(query, c)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Index < scored[j].Index
	})
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}
