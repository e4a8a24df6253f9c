package domain

import "context"

// EmbeddingProvider turns knowledge chunks and queries into vectors for the
// vector knowledge backend.
type EmbeddingProvider interface {
	// Embed generates embeddings for the given texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the dimensionality of the embedding vectors.
	Dimensions() int
	// Name identifies the backend in logs and index metadata.
	Name() string
}
