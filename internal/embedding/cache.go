package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedProvider memoizes another provider's embeddings in an LRU keyed by the text hash.
// Failed calls are not cached.
type CachedProvider struct {
	next  Provider
	cache *lru.Cache[string, []float32]
}

// NewCachedProvider wraps next with an LRU of the given size. A size <= 0 returns next unchanged.
func NewCachedProvider(next Provider, size int) (Provider, error) {
	if next == nil || size <= 0 {
		return next, nil
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedProvider{next: next, cache: cache}, nil
}

// IsAvailable delegates to the wrapped provider.
func (c *CachedProvider) IsAvailable() bool {
	return c.next.IsAvailable()
}

// Embed returns a cached vector or calls through.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		return cloneEmbedding(v), nil
	}
	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(v) > 0 {
		c.cache.Add(key, cloneEmbedding(v))
	}
	return v, nil
}

// Len returns the number of cached entries.
func (c *CachedProvider) Len() int {
	return c.cache.Len()
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneEmbedding(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
