package domain

import "strings"

// CodeBlock is one fenced block from a markdown reply.
type CodeBlock struct {
	Lang string
	Body string
}

// ExtractCodeBlocks returns the fenced ``` blocks of text in order. An
// unterminated final fence is ignored.
func ExtractCodeBlocks(text string) []CodeBlock {
	var blocks []CodeBlock
	parts := strings.Split(text, "```")
	for i := 1; i+1 < len(parts); i += 2 {
		raw := parts[i]
		lang, body, found := strings.Cut(raw, "\n")
		if !found {
			body, lang = lang, ""
		}
		blocks = append(blocks, CodeBlock{
			Lang: strings.ToLower(strings.TrimSpace(lang)),
			Body: strings.TrimSpace(body),
		})
	}
	return blocks
}
