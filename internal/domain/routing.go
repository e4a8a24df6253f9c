package domain

import "slices"

// Mode is the collaboration topology for a run.
type Mode string

const (
	ModeSingle     Mode = "single"
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// ParseMode returns the Mode for s, or false when s names no mode.
func ParseMode(s string) (Mode, bool) {
	switch m := Mode(s); m {
	case ModeSingle, ModeSequential, ModeParallel:
		return m, true
	}
	return "", false
}

// Confidence is the classifier's self-reported certainty.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence returns the Confidence for s, or false when s names none.
func ParseConfidence(s string) (Confidence, bool) {
	switch c := Confidence(s); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c, true
	}
	return "", false
}

// RoutingSource records which path produced a RoutingDecision.
type RoutingSource string

const (
	SourceLLM      RoutingSource = "llm"
	SourceKeyword  RoutingSource = "keyword"
	SourcePrefix   RoutingSource = "prefix"
	SourceFallback RoutingSource = "fallback"
)

// RoutingDecision is the classifier output.
type RoutingDecision struct {
	Primary    string        `json:"primary"`
	Supporting []string      `json:"supporting"`
	Mode       Mode          `json:"mode"`
	Confidence Confidence    `json:"confidence"`
	Reasoning  string        `json:"reasoning"`
	Source     RoutingSource `json:"source"`
}

// Normalize removes duplicates and the primary from Supporting and forces
// single mode when no supporting agents remain.
func (d *RoutingDecision) Normalize() {
	seen := map[string]bool{d.Primary: true}
	out := make([]string, 0, len(d.Supporting))
	for _, id := range d.Supporting {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	d.Supporting = out
	if len(d.Supporting) == 0 {
		d.Mode = ModeSingle
	}
	if d.Mode == "" {
		d.Mode = ModeSingle
	}
}

// Agents returns [Primary] followed by Supporting.
func (d RoutingDecision) Agents() []string {
	return append([]string{d.Primary}, slices.Clone(d.Supporting)...)
}
