package domain

import "context"

// LLMProvider is the interface for any LLM backend. The classifier uses it as
// its reasoning call and LLM-backed responders use it to answer.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "anthropic", "ollama").
	Name() string
}
