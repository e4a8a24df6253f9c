// Package tokens counts and truncates text by LLM tokens. It uses the
// cl100k_base encoding from tiktoken-go, loaded on first use, and falls back
// to a character heuristic when the encoding cannot be loaded.
package tokens

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

// Counter counts tokens. The zero value is not usable; call New.
type Counter struct {
	once      sync.Once
	enc       *tiktoken.Tiktoken
	heuristic bool
}

// Option configures a Counter.
type Option func(*Counter)

// Heuristic disables tiktoken entirely. Loading the encoding may fetch the
// BPE ranks over the network, so offline callers and tests use this.
func Heuristic() Option {
	return func(c *Counter) { c.heuristic = true }
}

// New creates a Counter.
func New(opts ...Option) *Counter {
	c := &Counter{}
	for _, o := range opts {
		o(c)
	}
	return c
}

var (
	defaultOnce    sync.Once
	defaultCounter *Counter
)

// Default returns the shared tiktoken-backed Counter.
func Default() *Counter {
	defaultOnce.Do(func() { defaultCounter = New() })
	return defaultCounter
}

func (c *Counter) encoding() *tiktoken.Tiktoken {
	if c.heuristic {
		return nil
	}
	c.once.Do(func() {
		if enc, err := tiktoken.GetEncoding(encodingName); err == nil {
			c.enc = enc
		}
	})
	return c.enc
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if enc := c.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return Estimate(text)
}

// Truncate cuts text to at most maxTokens, appending "..." when it cuts.
// maxTokens <= 0 means no limit.
func (c *Counter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	if enc := c.encoding(); enc != nil {
		toks := enc.Encode(text, nil, nil)
		if len(toks) <= maxTokens {
			return text
		}
		return enc.Decode(toks[:maxTokens]) + "..."
	}
	runes := []rune(text)
	limit := maxTokens * 4
	if limit >= len(runes) {
		return text
	}
	return string(runes[:limit]) + "..."
}

// Estimate returns max(runes/4, words), and at least 1 for non-blank text.
func Estimate(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	estimate := len([]rune(trimmed)) / 4
	if words := len(strings.Fields(trimmed)); estimate < words {
		estimate = words
	}
	return max(estimate, 1)
}
