package main

import (
	"context"
	"log/slog"

	"agentmux/internal/adapter/embedding"
	"agentmux/internal/adapter/knowledge"
	"agentmux/internal/domain"
	"agentmux/internal/infra/config"
)

const embeddingCacheSize = 1024

// knowledgeBackend is the configured retriever plus how to refresh it when
// the knowledge directory changes.
type knowledgeBackend struct {
	dir       string
	retriever domain.Retriever
	refresh   func(ctx context.Context)
	logger    *slog.Logger
}

// newKnowledgeBackend builds the retriever for cfg. It returns nil when
// retrieval is disabled.
func newKnowledgeBackend(ctx context.Context, cfg config.KnowledgeConfig, logger *slog.Logger) (*knowledgeBackend, error) {
	kb := &knowledgeBackend{dir: cfg.Dir, logger: logger}

	switch cfg.Backend {
	case "none":
		return nil, nil

	case "vector":
		emb, err := embedding.New(cfg.Embedding, embeddingCacheSize)
		if err != nil {
			return nil, err
		}
		vs, err := knowledge.NewVectorStore(cfg, emb, logger)
		if err != nil {
			return nil, err
		}
		// An unreachable embedder at startup leaves an empty index that the
		// watcher fills on the next change.
		if err := vs.Sync(ctx); err != nil {
			logger.Warn("initial knowledge sync failed", "error", err)
		}
		kb.retriever = vs
		kb.refresh = func(ctx context.Context) {
			if err := vs.Sync(ctx); err != nil {
				logger.Warn("knowledge sync failed", "error", err)
				return
			}
			logger.Info("knowledge index synced", "documents", vs.Count())
		}

	default:
		kb.retriever = knowledge.NewMarkdownStore(cfg.Dir,
			knowledge.WithMaxDocs(cfg.MaxDocs),
			knowledge.WithMaxChars(cfg.MaxChars),
			knowledge.WithLogger(logger),
		)
	}

	if cfg.CacheSize > 0 {
		cache := knowledge.NewCache(kb.retriever, cfg.CacheSize, cfg.CacheTTL)
		kb.retriever = cache
		inner := kb.refresh
		kb.refresh = func(ctx context.Context) {
			if inner != nil {
				inner(ctx)
			}
			cache.Purge()
		}
	}
	return kb, nil
}

// watch refreshes the backend on directory changes until ctx is done.
// Backends that read from disk on every call have nothing to refresh.
func (kb *knowledgeBackend) watch(ctx context.Context) {
	if kb == nil || kb.refresh == nil {
		return
	}
	w := knowledge.NewWatcher(kb.dir, kb.refresh, knowledge.WithWatcherLogger(kb.logger))
	go func() {
		if err := w.Run(ctx); err != nil {
			kb.logger.Warn("knowledge watcher stopped", "dir", kb.dir, "error", err)
		}
	}()
}
