// Package chat implements the interactive terminal chat over the
// orchestrator.
package chat

import "agentmux/internal/domain"

// resultMsg carries a finished run. gen identifies the request so results
// of cancelled runs are discarded.
type resultMsg struct {
	result domain.Result
	gen    uint64
}

// routeMsg carries a dry-run routing decision from /route.
type routeMsg struct {
	query     string
	decision  domain.RoutingDecision
	effective string
}

// historyMsg carries the answer to /history.
type historyMsg struct {
	sessions []domain.SessionSummary
	err      error
}

// streamTickMsg drives simulated streaming.
type streamTickMsg struct{ gen uint64 }
