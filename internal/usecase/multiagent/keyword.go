package multiagent

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"agentmux/internal/domain"
)

// keywordIndex scores queries against each agent's keyword list.
type keywordIndex struct {
	agents []keywordAgent
}

type keywordAgent struct {
	id       string
	patterns []*regexp.Regexp
}

type keywordScore struct {
	id    string
	score int
	pos   int // declaration index
}

func newKeywordIndex(descs []domain.AgentDescriptor) *keywordIndex {
	idx := &keywordIndex{agents: make([]keywordAgent, 0, len(descs))}
	for _, d := range descs {
		ka := keywordAgent{id: d.ID}
		for _, kw := range d.Keywords {
			if re := keywordPattern(kw); re != nil {
				ka.patterns = append(ka.patterns, re)
			}
		}
		idx.agents = append(idx.agents, ka)
	}
	return idx
}

// keywordPattern compiles a case-insensitive whole-word matcher. Word
// boundaries are only asserted next to word characters so that keywords
// like "c#" and ".net" still match.
func keywordPattern(kw string) *regexp.Regexp {
	kw = strings.TrimSpace(kw)
	if kw == "" {
		return nil
	}
	var b strings.Builder
	b.WriteString("(?i)")
	first, _ := utf8.DecodeRuneInString(kw)
	if isWordRune(first) {
		b.WriteString(`\b`)
	}
	b.WriteString(regexp.QuoteMeta(kw))
	last, _ := utf8.DecodeLastRuneInString(kw)
	if isWordRune(last) {
		b.WriteString(`\b`)
	} else {
		// "c#" must not match inside "c#x".
		b.WriteString(`(?:\W|$)`)
	}
	return regexp.MustCompile(b.String())
}

func isWordRune(r rune) bool {
	return r == '_' || (r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)))
}

// scores returns one score per agent in declaration order.
func (k *keywordIndex) scores(query string) []keywordScore {
	out := make([]keywordScore, len(k.agents))
	for i, a := range k.agents {
		n := 0
		for _, re := range a.patterns {
			n += len(re.FindAllStringIndex(query, -1))
		}
		out[i] = keywordScore{id: a.id, score: n, pos: i}
	}
	return out
}

// route runs keyword fallback routing. Highest score wins with ties going
// to the earliest declared agent; the rest of the scoring agents support it
// in descending score order.
func (k *keywordIndex) route(query, defaultID string) domain.RoutingDecision {
	scored := k.scores(query)

	ranked := make([]keywordScore, 0, len(scored))
	for _, s := range scored {
		if s.score > 0 {
			ranked = append(ranked, s)
		}
	}
	if len(ranked) == 0 {
		return domain.RoutingDecision{
			Primary:    defaultID,
			Supporting: []string{},
			Mode:       domain.ModeSingle,
			Confidence: domain.ConfidenceLow,
			Reasoning:  "keyword fallback: no keywords matched",
			Source:     domain.SourceKeyword,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].pos < ranked[j].pos
	})

	d := domain.RoutingDecision{
		Primary:    ranked[0].id,
		Supporting: make([]string, 0, len(ranked)-1),
		Mode:       domain.ModeSingle,
		Confidence: domain.ConfidenceLow,
		Source:     domain.SourceKeyword,
	}
	parts := make([]string, 0, len(ranked))
	for i, s := range ranked {
		parts = append(parts, fmt.Sprintf("%s=%d", s.id, s.score))
		if i > 0 {
			d.Supporting = append(d.Supporting, s.id)
		}
	}
	if len(d.Supporting) > 0 {
		d.Mode = domain.ModeSequential
	}
	d.Reasoning = "keyword fallback: " + strings.Join(parts, ", ")
	return d
}
