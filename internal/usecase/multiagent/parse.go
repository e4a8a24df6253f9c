package multiagent

import (
	"strings"

	"agentmux/internal/domain"
)

// parseDecision reads the PRIMARY/SUPPORTING/MODE/CONFIDENCE/REASONING
// lines of a classifier reply. Values that name no registered agent or no
// known enum member are dropped and the defaults kept.
func parseDecision(reply string, known func(string) bool, defaultID string) domain.RoutingDecision {
	d := domain.RoutingDecision{
		Primary:    defaultID,
		Supporting: []string{},
		Mode:       domain.ModeSingle,
		Confidence: domain.ConfidenceMedium,
		Source:     domain.SourceLLM,
	}

	for _, line := range strings.Split(reply, "\n") {
		label, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToUpper(strings.TrimSpace(label)) {
		case "PRIMARY":
			if id := normalizeID(value); known(id) {
				d.Primary = id
			}
		case "SUPPORTING":
			d.Supporting = parseAgentList(value, known)
		case "MODE":
			if m, ok := domain.ParseMode(strings.ToLower(value)); ok {
				d.Mode = m
			}
		case "CONFIDENCE":
			if c, ok := domain.ParseConfidence(strings.ToLower(value)); ok {
				d.Confidence = c
			}
		case "REASONING":
			d.Reasoning = value
		}
	}
	return d
}

func parseAgentList(s string, known func(string) bool) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if id := normalizeID(part); known(id) {
			out = append(out, id)
		}
	}
	return out
}

func normalizeID(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), "`\"'*"))
}
