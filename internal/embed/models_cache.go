package embed

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultModelListTTL bounds how long a cached provider model list is
// trusted before it is fetched again.
const DefaultModelListTTL = 10 * time.Minute

const modelCacheKey = "models"

// ModelCache caches a provider's model list for a bounded lifetime. It is
// an explicit per-embedder object; nothing is shared through package
// globals, so tests can inject an arbitrary TTL.
type ModelCache struct {
	cache *expirable.LRU[string, []string]
	fetch func(ctx context.Context) ([]string, error)
}

// NewModelCache creates a model-list cache around a fetch function. A
// non-positive ttl falls back to DefaultModelListTTL.
func NewModelCache(ttl time.Duration, fetch func(ctx context.Context) ([]string, error)) *ModelCache {
	if ttl <= 0 {
		ttl = DefaultModelListTTL
	}
	return &ModelCache{
		cache: expirable.NewLRU[string, []string](1, nil, ttl),
		fetch: fetch,
	}
}

// Models returns the provider's model list, fetching it only when the
// cached copy has expired. Fetch errors are never cached.
func (c *ModelCache) Models(ctx context.Context) ([]string, error) {
	if models, ok := c.cache.Get(modelCacheKey); ok {
		return models, nil
	}

	models, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Add(modelCacheKey, models)
	return models, nil
}

// Invalidate drops the cached model list so the next call fetches fresh.
func (c *ModelCache) Invalidate() {
	c.cache.Remove(modelCacheKey)
}
