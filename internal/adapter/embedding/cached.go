package embedding

import (
	"context"
	"hash/fnv"

	lru "github.com/hashicorp/golang-lru/v2"

	"agentmux/internal/domain"
	"agentmux/internal/infra/config"
)

// CachedEmbedder caches single-text embeddings, which is what every search
// query is. Batch calls pass through uncached.
type CachedEmbedder struct {
	inner domain.EmbeddingProvider
	cache *lru.Cache[uint64, []float32]
}

// NewCachedEmbedder wraps inner with an LRU cache of size entries.
// size <= 0 returns inner unchanged.
func NewCachedEmbedder(inner domain.EmbeddingProvider, size int) domain.EmbeddingProvider {
	if size <= 0 {
		return inner
	}
	cache, err := lru.New[uint64, []float32](size)
	if err != nil {
		return inner
	}
	return &CachedEmbedder{inner: inner, cache: cache}
}

// Embed implements domain.EmbeddingProvider.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) != 1 {
		return c.inner.Embed(ctx, texts)
	}
	key := hashText(texts[0])
	if vec, ok := c.cache.Get(key); ok {
		return [][]float32{vec}, nil
	}

	result, err := c.inner.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(result) > 0 {
		c.cache.Add(key, result[0])
	}
	return result, nil
}

// Dimensions implements domain.EmbeddingProvider.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Name implements domain.EmbeddingProvider.
func (c *CachedEmbedder) Name() string { return c.inner.Name() }

func hashText(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// New builds the provider named by cfg, wrapped in a query cache of
// cacheSize entries.
func New(cfg config.EmbeddingConfig, cacheSize int) (domain.EmbeddingProvider, error) {
	var p domain.EmbeddingProvider
	switch cfg.Provider {
	case "ollama":
		opts := []OllamaOption{}
		if cfg.Model != "" {
			opts = append(opts, WithOllamaModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, WithOllamaBaseURL(cfg.BaseURL))
		}
		p = NewOllamaProvider(opts...)
	case "openai":
		opts := []OpenAIOption{}
		if cfg.Model != "" {
			opts = append(opts, WithOpenAIModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, WithOpenAIBaseURL(cfg.BaseURL))
		}
		p = NewOpenAIProvider(cfg.APIKey, opts...)
	default:
		return nil, domain.NewDomainError("embedding.New", domain.ErrInvalidInput, "unknown provider "+cfg.Provider)
	}
	return NewCachedEmbedder(p, cacheSize), nil
}
