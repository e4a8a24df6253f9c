package embedding

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmux/internal/domain"
	"agentmux/internal/infra/config"
)

func TestOllamaEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, []string{"a", "b"}, req.Input)
		_, _ = io.WriteString(w, `{"embeddings":[[0.1,0.2,0.3],[0.4,0.5,0.6]]}`)
	}))
	defer server.Close()

	p := NewOllamaProvider(WithOllamaBaseURL(server.URL + "/"))
	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, float32(0.4), vecs[1][0])
	assert.Equal(t, 3, p.Dimensions())
	assert.Equal(t, "ollama", p.Name())
}

func TestOllamaEmbedEmpty(t *testing.T) {
	vecs, err := NewOllamaProvider().Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestOllamaEmbedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewOllamaProvider(WithOllamaBaseURL(server.URL)).Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "404")
}

func TestOpenAIEmbedReordersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-x", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"data":[{"index":1,"embedding":[2]},{"index":0,"embedding":[1]}]}`)
	}))
	defer server.Close()

	p := NewOpenAIProvider("sk-x", WithOpenAIBaseURL(server.URL))
	vecs, err := p.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}}, vecs)
}

func TestOpenAIEmbedCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data":[]}`)
	}))
	defer server.Close()

	_, err := NewOpenAIProvider("k", WithOpenAIBaseURL(server.URL)).Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailed)
}

type countingEmbedder struct{ calls atomic.Int32 }

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}
func (c *countingEmbedder) Dimensions() int { return 1 }
func (c *countingEmbedder) Name() string    { return "counting" }

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 2)

	for range 3 {
		vecs, err := c.Embed(context.Background(), []string{"hello"})
		require.NoError(t, err)
		assert.Equal(t, float32(5), vecs[0][0])
	}
	assert.Equal(t, int32(1), inner.calls.Load())

	_, _ = c.Embed(context.Background(), []string{"a", "b"})
	_, _ = c.Embed(context.Background(), []string{"a", "b"})
	assert.Equal(t, int32(3), inner.calls.Load(), "batches are not cached")

	_, _ = c.Embed(context.Background(), []string{"x"})
	_, _ = c.Embed(context.Background(), []string{"y"})
	_, _ = c.Embed(context.Background(), []string{"hello"})
	assert.Equal(t, int32(6), inner.calls.Load(), "hello should have been evicted")
	assert.Equal(t, "counting", c.Name())
	assert.Equal(t, 1, c.Dimensions())
}

func TestCachedEmbedderDisabled(t *testing.T) {
	inner := &countingEmbedder{}
	assert.Same(t, domain.EmbeddingProvider(inner), NewCachedEmbedder(inner, 0))
}

func TestNew(t *testing.T) {
	p, err := New(config.EmbeddingConfig{Provider: "ollama", Model: "mxbai"}, 16)
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())
	_, ok := p.(*CachedEmbedder)
	assert.True(t, ok)

	p, err = New(config.EmbeddingConfig{Provider: "openai", APIKey: "k"}, 0)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIProvider{}, p)

	_, err = New(config.EmbeddingConfig{Provider: "cohere"}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
