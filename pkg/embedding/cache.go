package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/developer-mesh/semantic-graph-search/internal/observability"
)

// cacheKey builds the single-text cache key hash(model_id ‖ normalized_text)
// required by spec.md §4.1.
func cacheKey(modelID, normalizedText string) string {
	h := sha256.New()
	h.Write([]byte(modelID))
	h.Write([]byte{0})
	h.Write([]byte(normalizedText))
	return hex.EncodeToString(h.Sum(nil))
}

// twoTierCache is the Cache implementation: an in-process LRU in front of a
// Redis-backed second tier, both storing the gzip-compressed, dimension-
// prefixed vector encoding from compression.go. Grounded on
// pkg/embedding/cache (local + distributed tiers), rebuilt around
// hashicorp/golang-lru/v2 and go-redis/redis/v8 directly rather than a
// hand-rolled local map.
type twoTierCache struct {
	local       *lru.Cache[string, []byte]
	redis       redis.UniversalClient
	ttl         time.Duration
	dim         int
	opTimeout   time.Duration
	metrics     *embeddingCacheMetrics
}

// embeddingCacheMetrics is the narrow slice of *observability.Metrics the
// cache needs; defined here to keep this package decoupled from the
// concrete metrics type.
type embeddingCacheMetrics struct {
	RecordCacheOperation func(hit bool)
}

// newTwoTierCache constructs the cache. redisClient may be nil, in which
// case the cache degrades to local-only (absence never affects
// correctness, only performance, per spec.md §4.1).
func newTwoTierCache(localSize int, redisClient redis.UniversalClient, ttl time.Duration, dim int, opTimeout time.Duration, metrics *embeddingCacheMetrics) (*twoTierCache, error) {
	local, err := lru.New[string, []byte](localSize)
	if err != nil {
		return nil, err
	}
	return &twoTierCache{
		local:     local,
		redis:     redisClient,
		ttl:       ttl,
		dim:       dim,
		opTimeout: opTimeout,
		metrics:   metrics,
	}, nil
}

// NewCache is the exported entry point callers outside this package (the
// composition root) use to build the two-tier Cache backing a Service.
// redisClient may be nil to run local-only.
func NewCache(localSize int, redisClient redis.UniversalClient, ttl time.Duration, dim int, opTimeout time.Duration, metrics *observability.Metrics) (Cache, error) {
	var cm *embeddingCacheMetrics
	if metrics != nil {
		cm = &embeddingCacheMetrics{RecordCacheOperation: metrics.RecordCacheOperation}
	}
	return newTwoTierCache(localSize, redisClient, ttl, dim, opTimeout, cm)
}

func (c *twoTierCache) recordHit(hit bool) {
	if c.metrics != nil && c.metrics.RecordCacheOperation != nil {
		c.metrics.RecordCacheOperation(hit)
	}
}

// Get checks the local tier first, then Redis, populating the local tier
// on a Redis hit. A decode failure (e.g. dimension mismatch after a model
// change) is treated as a miss rather than an error.
func (c *twoTierCache) Get(ctx context.Context, key string) ([]float32, bool) {
	if raw, ok := c.local.Get(key); ok {
		if vec, err := decodeVector(raw, c.dim); err == nil {
			c.recordHit(true)
			return vec, true
		}
		c.local.Remove(key)
	}

	if c.redis == nil {
		c.recordHit(false)
		return nil, false
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	raw, err := c.redis.Get(opCtx, key).Bytes()
	if err != nil {
		c.recordHit(false)
		return nil, false
	}

	vec, err := decodeVector(raw, c.dim)
	if err != nil {
		c.recordHit(false)
		return nil, false
	}

	c.local.Add(key, raw)
	c.recordHit(true)
	return vec, true
}

// Set writes through both tiers. Redis errors are swallowed: cache writes
// are best-effort and never surface as a caller-visible failure.
func (c *twoTierCache) Set(ctx context.Context, key string, vec []float32) {
	raw, err := encodeVector(vec)
	if err != nil {
		return
	}
	c.local.Add(key, raw)

	if c.redis == nil {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	_ = c.redis.Set(opCtx, key, raw, c.ttl).Err()
}
