package multiagent

import (
	"io"
	"log/slog"
	"strings"

	"agentmux/internal/domain"
)

// discardLogger returns a no-op logger for components created without one.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// PrefixRouter parses an @agent prefix from the query.
type PrefixRouter struct {
	known  map[string]string // lowercase id or name -> agentID
	logger *slog.Logger
}

// NewPrefixRouter creates a router that recognises each agent by its ID and
// by its lowercased name with spaces removed.
func NewPrefixRouter(descs []domain.AgentDescriptor) *PrefixRouter {
	return NewPrefixRouterWithLogger(descs, discardLogger())
}

// NewPrefixRouterWithLogger creates a PrefixRouter with debug logging.
func NewPrefixRouterWithLogger(descs []domain.AgentDescriptor, logger *slog.Logger) *PrefixRouter {
	known := make(map[string]string, len(descs)*2)
	for _, d := range descs {
		known[strings.ToLower(d.ID)] = d.ID
		if d.Name != "" {
			name := strings.ToLower(strings.ReplaceAll(d.Name, " ", ""))
			if _, taken := known[name]; !taken {
				known[name] = d.ID
			}
		}
	}
	return &PrefixRouter{known: known, logger: logger}
}

// Route returns a high-confidence single-agent decision and the query with
// the prefix removed when the query starts with a known @agent. ok is false
// otherwise.
func (r *PrefixRouter) Route(query string) (decision domain.RoutingDecision, rest string, ok bool) {
	content := strings.TrimSpace(query)
	if !strings.HasPrefix(content, "@") {
		return domain.RoutingDecision{}, query, false
	}

	// Extract the name after @, up to the first whitespace.
	name, rest, _ := strings.Cut(content[1:], " ")
	name = strings.ToLower(strings.TrimRight(name, ":,"))

	agentID, found := r.known[name]
	if !found {
		r.logger.Debug("unknown prefix, classifying normally", "prefix", name)
		return domain.RoutingDecision{}, query, false
	}
	r.logger.Debug("prefix matched agent", "prefix", name, "agent_id", agentID)
	return domain.RoutingDecision{
		Primary:    agentID,
		Supporting: []string{},
		Mode:       domain.ModeSingle,
		Confidence: domain.ConfidenceHigh,
		Reasoning:  "explicit @" + name + " prefix",
		Source:     domain.SourcePrefix,
	}, strings.TrimSpace(rest), true
}
