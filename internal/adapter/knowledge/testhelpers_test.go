package knowledge

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func writeDoc(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// bagOfWords embeds text as hashed term counts, so texts sharing words
// are similar and texts sharing none are orthogonal.
type bagOfWords struct{ calls atomic.Int32 }

const bowDims = 64

func (b *bagOfWords) Embed(_ context.Context, texts []string) ([][]float32, error) {
	b.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, bowDims)
		for _, term := range termPattern.FindAllString(strings.ToLower(text), -1) {
			h := fnv.New32a()
			h.Write([]byte(term))
			vec[h.Sum32()%bowDims]++
		}
		out[i] = vec
	}
	return out, nil
}

func (b *bagOfWords) Dimensions() int { return bowDims }
func (b *bagOfWords) Name() string    { return "bow" }

type countingRetriever struct {
	calls atomic.Int32
	text  string
	err   error
}

func (c *countingRetriever) Retrieve(context.Context, string, string) (string, error) {
	c.calls.Add(1)
	return c.text, c.err
}
