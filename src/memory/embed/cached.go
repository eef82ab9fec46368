package embed

import (
	"context"
	"strings"
	"time"

	"github.com/Protocol-Lattice/journal-agent/src/cache"
)

// CachedEmbedder memoises vectors per normalised text so repeated queries and
// router reference utterances hit the provider once.
type CachedEmbedder struct {
	Embedder Embedder
	Cache    *cache.LRU[[]float32]
}

// NewCachedEmbedder wraps e with an LRU of the given size and TTL.
func NewCachedEmbedder(e Embedder, size int, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{Embedder: e, Cache: cache.New[[]float32](size, ttl)}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.HashKey(strings.TrimSpace(text))
	if vec, ok := c.Cache.Get(key); ok {
		return append([]float32(nil), vec...), nil
	}
	vec, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, ErrNotSupported
	}
	c.Cache.Set(key, append([]float32(nil), vec...))
	return vec, nil
}
