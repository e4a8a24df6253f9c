package knowledge

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"agentmux/internal/domain"
)

// Cache memoizes a Retriever per (agent, query) for a fixed TTL. Failed
// lookups are not cached.
type Cache struct {
	inner domain.Retriever
	lru   *expirable.LRU[string, string]
}

// NewCache wraps inner with an LRU of size entries that expire after ttl.
func NewCache(inner domain.Retriever, size int, ttl time.Duration) *Cache {
	return &Cache{
		inner: inner,
		lru:   expirable.NewLRU[string, string](size, nil, ttl),
	}
}

// Retrieve implements domain.Retriever.
func (c *Cache) Retrieve(ctx context.Context, query, agentID string) (string, error) {
	key := agentID + "\x00" + query
	if text, ok := c.lru.Get(key); ok {
		return text, nil
	}
	text, err := c.inner.Retrieve(ctx, query, agentID)
	if err != nil {
		return "", err
	}
	c.lru.Add(key, text)
	return text, nil
}

// Purge drops every cached entry.
func (c *Cache) Purge() { c.lru.Purge() }

// Len returns the number of cached entries.
func (c *Cache) Len() int { return c.lru.Len() }

var _ domain.Retriever = (*Cache)(nil)
