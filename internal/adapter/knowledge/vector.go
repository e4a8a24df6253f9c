package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"agentmux/internal/domain"
	"agentmux/internal/infra/config"
)

const collectionName = "knowledge"

// VectorStore ranks documents by embedding similarity using a chromem-go
// collection. Call Sync to (re)index the knowledge directory.
type VectorStore struct {
	dir      string
	maxDocs  int
	maxChars int
	db       *chromem.DB
	embed    chromem.EmbeddingFunc
	logger   *slog.Logger

	syncMu     sync.Mutex
	mu         sync.RWMutex
	collection *chromem.Collection
}

// NewVectorStore opens the index described by cfg.Vector. An empty path
// keeps the index in memory.
func NewVectorStore(cfg config.KnowledgeConfig, embedder domain.EmbeddingProvider, logger *slog.Logger) (*VectorStore, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var (
		db  *chromem.DB
		err error
	)
	if cfg.Vector.Path != "" {
		db, err = chromem.NewPersistentDB(cfg.Vector.Path, cfg.Vector.Compress)
		if err != nil {
			return nil, fmt.Errorf("knowledge: open vector index: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	embed := func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) == 0 {
			return nil, fmt.Errorf("%w: empty result", domain.ErrEmbeddingFailed)
		}
		return vecs[0], nil
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("knowledge: open collection: %w", err)
	}

	maxDocs := cfg.MaxDocs
	if maxDocs <= 0 {
		maxDocs = 2
	}
	return &VectorStore{
		dir:        cfg.Dir,
		maxDocs:    maxDocs,
		maxChars:   cfg.MaxChars,
		db:         db,
		embed:      embed,
		logger:     logger,
		collection: collection,
	}, nil
}

// Count returns the number of indexed documents.
func (s *VectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection.Count()
}

// Sync rebuilds the index from the knowledge directory. Unchanged
// documents keep their stored embeddings; only new or edited ones are
// embedded again. Deleted files drop out of the index.
func (s *VectorStore) Sync(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	docs, err := loadAllDocs(s.dir)
	if err != nil {
		return fmt.Errorf("knowledge: load documents: %w", err)
	}

	s.mu.RLock()
	old := s.collection
	s.mu.RUnlock()

	var (
		prepared = make([]chromem.Document, 0, len(docs))
		embedded int
	)
	for _, d := range docs {
		if d.Content == "" {
			continue
		}
		sum := sha256.Sum256([]byte(d.Title + "\x00" + d.Content))
		hash := hex.EncodeToString(sum[:])

		cd := chromem.Document{
			ID:      d.Path,
			Content: d.Content,
			Metadata: map[string]string{
				"agent": d.Agent,
				"title": d.Title,
				"sha":   hash,
			},
		}
		if prev, err := old.GetByID(ctx, d.Path); err == nil && prev.Metadata["sha"] == hash {
			cd.Embedding = prev.Embedding
		} else {
			vec, err := s.embed(ctx, d.Title+"\n\n"+d.Content)
			if err != nil {
				return fmt.Errorf("knowledge: embed %s: %w", d.Path, err)
			}
			cd.Embedding = vec
			embedded++
		}
		prepared = append(prepared, cd)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("knowledge: reset collection: %w", err)
	}
	collection, err := s.db.CreateCollection(collectionName, nil, s.embed)
	if err != nil {
		return fmt.Errorf("knowledge: create collection: %w", err)
	}
	if len(prepared) > 0 {
		if err := collection.AddDocuments(ctx, prepared, runtime.NumCPU()); err != nil {
			return fmt.Errorf("knowledge: index documents: %w", err)
		}
	}
	s.collection = collection
	s.logger.Info("knowledge index synced", "documents", len(prepared), "embedded", embedded)
	return nil
}

// Retrieve implements domain.Retriever. It searches the agent's documents
// and the shared ones and formats the closest matches.
func (s *VectorStore) Retrieve(ctx context.Context, query, agentID string) (string, error) {
	if err := validateAgentDir(agentID); err != nil {
		return "", domain.NewDomainError("VectorStore.Retrieve", domain.ErrInvalidInput, err.Error())
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := min(s.maxDocs, s.collection.Count())
	if n == 0 || query == "" {
		return "", nil
	}
	qv, err := s.embed(ctx, query)
	if err != nil {
		return "", err
	}

	var results []chromem.Result
	for _, agent := range []string{agentID, SharedDir} {
		res, err := s.collection.QueryEmbedding(ctx, qv, n, map[string]string{"agent": agent}, nil)
		if err != nil {
			return "", fmt.Errorf("knowledge: query: %w", err)
		}
		results = append(results, res...)
		if agentID == SharedDir {
			break
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })

	var docs []Document
	for _, r := range results {
		if len(docs) == n {
			break
		}
		if r.Similarity <= 0 {
			continue
		}
		docs = append(docs, Document{Agent: r.Metadata["agent"], Path: r.ID, Title: r.Metadata["title"], Content: r.Content})
	}
	return formatContext(docs, s.maxChars), nil
}

var _ domain.Retriever = (*VectorStore)(nil)
