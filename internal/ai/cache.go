package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"textbook-rag-backend/utils"
)

// CachedEmbedder wraps an EmbeddingProvider with a Redis cache keyed by
// provider, intent and content hash. Repeated queries (and re-ingested
// unchanged chunks) skip the provider round-trip. Cache failures degrade to
// a direct provider call, never to an error.
type CachedEmbedder struct {
	inner EmbeddingProvider
	rdb   *redis.Client
	ttl   time.Duration
	log   *slog.Logger
}

func NewCachedEmbedder(inner EmbeddingProvider, rdb *redis.Client, ttl time.Duration, log *slog.Logger) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

func (c *CachedEmbedder) Name() string { return c.inner.Name() }

func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string, intent EmbedIntent) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = fmt.Sprintf("emb:%s:%s:%s", c.inner.Name(), intent, utils.ContentHash(text))
	}

	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	cached, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn("embedding cache read failed", "error", err)
		return c.inner.EmbedBatch(ctx, texts, intent)
	}

	for i, raw := range cached {
		str, ok := raw.(string)
		if !ok {
			missTexts = append(missTexts, texts[i])
			missIdx = append(missIdx, i)
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(str), &vec); err != nil || len(vec) != c.inner.Dimension() {
			missTexts = append(missTexts, texts[i])
			missIdx = append(missIdx, i)
			continue
		}
		vectors[i] = vec
	}

	if len(missTexts) > 0 {
		fresh, err := c.inner.EmbedBatch(ctx, missTexts, intent)
		if err != nil {
			return nil, err
		}
		pipe := c.rdb.Pipeline()
		for j, vec := range fresh {
			i := missIdx[j]
			vectors[i] = vec
			if data, err := json.Marshal(vec); err == nil {
				pipe.Set(ctx, keys[i], data, c.ttl)
			}
		}
		if _, err := pipe.Exec(ctx); err != nil {
			c.log.Warn("embedding cache write failed", "error", err)
		}
	}

	return vectors, nil
}
