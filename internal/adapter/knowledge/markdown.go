package knowledge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"agentmux/internal/domain"
)

var (
	termPattern     = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	filenameUnsafe  = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	filenameSpacing = regexp.MustCompile(`\s+`)
)

// ScoredDocument is a search hit.
type ScoredDocument struct {
	Document
	Score int
}

// MarkdownOption configures a MarkdownStore.
type MarkdownOption func(*MarkdownStore)

// WithMaxDocs limits how many documents go into one context.
func WithMaxDocs(n int) MarkdownOption {
	return func(s *MarkdownStore) { s.maxDocs = n }
}

// WithMaxChars limits how much of each document goes into one context.
func WithMaxChars(n int) MarkdownOption {
	return func(s *MarkdownStore) { s.maxChars = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) MarkdownOption {
	return func(s *MarkdownStore) { s.logger = logger }
}

// MarkdownStore scores documents by keyword overlap with the query.
// It reads the directory on every call, so edits show up immediately;
// wrap it in a Cache to avoid the disk walk.
type MarkdownStore struct {
	dir      string
	maxDocs  int
	maxChars int
	logger   *slog.Logger
}

// NewMarkdownStore creates a store rooted at dir.
func NewMarkdownStore(dir string, opts ...MarkdownOption) *MarkdownStore {
	s := &MarkdownStore{
		dir:      dir,
		maxDocs:  2,
		maxChars: 500,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the knowledge directory.
func (s *MarkdownStore) Dir() string { return s.dir }

// Retrieve implements domain.Retriever.
func (s *MarkdownStore) Retrieve(ctx context.Context, query, agentID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	hits, err := s.Search(query, agentID, s.maxDocs)
	if err != nil {
		return "", err
	}
	docs := make([]Document, len(hits))
	for i, h := range hits {
		docs[i] = h.Document
	}
	s.logger.Debug("knowledge retrieved", "agent_id", agentID, "documents", len(docs))
	return formatContext(docs, s.maxChars), nil
}

// Search returns up to limit documents of agentID and the shared directory
// with a positive score, best first. Each distinct query term adds 5 when
// it occurs in the title and one per occurrence in the body.
func (s *MarkdownStore) Search(query, agentID string, limit int) ([]ScoredDocument, error) {
	if err := validateAgentDir(agentID); err != nil {
		return nil, domain.NewDomainError("MarkdownStore.Search", domain.ErrInvalidInput, err.Error())
	}
	if _, err := os.Stat(s.dir); err != nil {
		return nil, domain.NewDomainError("MarkdownStore.Search", domain.ErrKnowledgeNotFound, s.dir)
	}

	docs, err := loadAgentDocs(s.dir, agentID)
	if err != nil {
		return nil, err
	}
	if agentID != SharedDir {
		shared, err := loadAgentDocs(s.dir, SharedDir)
		if err != nil {
			return nil, err
		}
		docs = append(docs, shared...)
	}

	terms := queryTerms(query)
	var hits []ScoredDocument
	for _, d := range docs {
		if score := scoreDocument(d, terms); score > 0 {
			hits = append(hits, ScoredDocument{Document: d, Score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Path < hits[j].Path
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func queryTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range termPattern.FindAllString(strings.ToLower(query), -1) {
		if !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}
	return terms
}

func scoreDocument(d Document, terms []string) int {
	title := strings.ToLower(d.Title)
	content := strings.ToLower(d.Content)
	score := 0
	for _, t := range terms {
		if strings.Contains(title, t) {
			score += 5
		}
		score += strings.Count(content, t)
	}
	return score
}

// AddDocument writes a new document for agentID (or SharedDir) and returns
// its path. The file name is derived from the title.
func (s *MarkdownStore) AddDocument(agentID, title, content string, tags []string) (string, error) {
	if err := validateAgentDir(agentID); err != nil {
		return "", domain.NewDomainError("MarkdownStore.AddDocument", domain.ErrInvalidInput, err.Error())
	}
	name := sanitizeFilename(title)
	if name == "" {
		return "", domain.NewDomainError("MarkdownStore.AddDocument", domain.ErrInvalidInput, "title has no usable characters")
	}

	dir := filepath.Join(s.dir, agentID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("knowledge: create agent dir: %w", err)
	}
	data, err := renderDocument(Document{Title: title, Tags: tags, Content: content})
	if err != nil {
		return "", fmt.Errorf("knowledge: render document: %w", err)
	}
	path := filepath.Join(dir, name+".md")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("knowledge: write document: %w", err)
	}
	s.logger.Info("knowledge document added", "agent_id", agentID, "path", path)
	return path, nil
}

func sanitizeFilename(title string) string {
	name := filenameUnsafe.ReplaceAllString(title, "")
	return filenameSpacing.ReplaceAllString(strings.TrimSpace(name), "_")
}

var _ domain.Retriever = (*MarkdownStore)(nil)
