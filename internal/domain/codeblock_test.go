package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCodeBlocks(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []CodeBlock
	}{
		{"none", "plain answer", nil},
		{
			name: "language tagged",
			in:   "Try this:\n```sql\nSELECT 1;\n```\nand\n```csharp\nvar x = 1;\n```",
			want: []CodeBlock{{Lang: "sql", Body: "SELECT 1;"}, {Lang: "csharp", Body: "var x = 1;"}},
		},
		{
			name: "untagged",
			in:   "```\nls -la\n```",
			want: []CodeBlock{{Lang: "", Body: "ls -la"}},
		},
		{
			name: "unterminated fence ignored",
			in:   "```go\nfmt.Println()\n```\n```sql\nSELECT",
			want: []CodeBlock{{Lang: "go", Body: "fmt.Println()"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCodeBlocks(tt.in))
		})
	}
}
