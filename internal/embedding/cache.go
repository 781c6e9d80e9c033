package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
)

// Cached memoizes vectors of the wrapped provider, keyed by a hash of the text.
// Failures are never cached.
type Cached struct {
	next  Provider
	cache *cache.Cache
}

var _ Provider = (*Cached)(nil)

// WithCache wraps next with an in-memory cache whose entries expire after ttl.
func WithCache(next Provider, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		return slices.Clone(v.([]float32)), nil
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.SetDefault(key, slices.Clone(vec))
	return vec, nil
}

// Len returns the number of cached vectors, including expired ones not yet swept.
func (c *Cached) Len() int {
	return c.cache.ItemCount()
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
