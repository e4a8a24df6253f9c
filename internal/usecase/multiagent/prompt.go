package multiagent

import (
	"fmt"
	"strings"

	"agentmux/internal/domain"
)

const classifierInstructions = `You are a routing agent in a multi-agent system. Decide which specialist agents should answer the user's query and how they should work together.

Collaboration modes:
- single: one agent can fully answer the query.
- sequential: agents build on each other's output, in order primary then supporting.
- parallel: agents answer the same original query independently and their answers are merged.

Respond with exactly these five lines and nothing else:
PRIMARY: <agent id>
SUPPORTING: <comma-separated agent ids, or none>
MODE: <single|sequential|parallel>
CONFIDENCE: <high|medium|low>
REASONING: <one sentence>`

// buildClassifierPrompt renders the system prompt listing every agent.
func buildClassifierPrompt(descs []domain.AgentDescriptor, defaultID string) string {
	var sb strings.Builder
	sb.WriteString(classifierInstructions)
	sb.WriteString("\n\nAvailable agents:\n")
	for _, d := range descs {
		fmt.Fprintf(&sb, "- %s (%s): %s", d.ID, d.Name, d.Description)
		if len(d.Keywords) > 0 {
			fmt.Fprintf(&sb, " Keywords: %s.", strings.Join(d.Keywords, ", "))
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\nUse %q as PRIMARY when no specialist fits.", defaultID)
	return sb.String()
}
