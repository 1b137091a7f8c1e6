package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/aihub/ragbot/internal/logger"
	"github.com/aihub/ragbot/internal/metrics"
	"go.uber.org/zap"
)

// VectorCache 向量缓存
type VectorCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error
}

// CachedEmbedder 在 Embedder 外加一层缓存，缓存故障只记录日志不影响向量化
type CachedEmbedder struct {
	inner Embedder
	cache VectorCache
	model string
	ttl   time.Duration
}

// NewCachedEmbedder 创建带缓存的向量生成器，cache 为 nil 时直接返回 inner
func NewCachedEmbedder(inner Embedder, cache VectorCache, model string, ttl time.Duration) Embedder {
	if cache == nil {
		return inner
	}
	return &CachedEmbedder{
		inner: inner,
		cache: cache,
		model: model,
		ttl:   ttl,
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	vec, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.EmbeddingCache.WithLabelValues("error").Inc()
		logger.Warn("embedding cache lookup failed", zap.Error(err))
	case ok && len(vec) == c.inner.Dimensions():
		metrics.EmbeddingCache.WithLabelValues("hit").Inc()
		return vec, nil
	default:
		metrics.EmbeddingCache.WithLabelValues("miss").Inc()
	}

	vec, err = c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, vec, c.ttl); err != nil {
		logger.Warn("embedding cache store failed", zap.Error(err))
	}
	return vec, nil
}

func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

func (c *CachedEmbedder) Ready() bool {
	return c.inner.Ready()
}

func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
