package multiagent

import "agentmux/internal/domain"

// BuildResult projects a finished session onto the caller-facing Result.
// outputKind reports the descriptor Output of an agent ID; it may be nil.
func BuildResult(session *domain.CollaborationSession, decision domain.RoutingDecision, outputKind func(agentID string) string) domain.Result {
	status, msgs := session.Snapshot()

	r := domain.Result{
		SessionID:      session.ID,
		Success:        status == domain.StatusCompleted,
		Mode:           session.Mode,
		AgentsUsed:     session.AgentsUsed(),
		Confidence:     decision.Confidence,
		Reasoning:      decision.Reasoning,
		FinalResponse:  session.FinalResponse,
		ExecutionError: session.Error,
	}
	if outputKind == nil {
		return r
	}

	for _, m := range msgs {
		if m.Kind != domain.KindResponse {
			continue
		}
		switch outputKind(m.AgentID) {
		case domain.OutputSQL:
			if r.SQL == "" {
				r.SQL = pickBlock(domain.ExtractCodeBlocks(m.Content), "sql")
			}
		case domain.OutputCode:
			if r.CodeExample == "" {
				r.CodeExample = pickBlock(domain.ExtractCodeBlocks(m.Content), "")
			}
		}
	}
	return r
}

// pickBlock returns the first block tagged lang, else the first block.
func pickBlock(blocks []domain.CodeBlock, lang string) string {
	if len(blocks) == 0 {
		return ""
	}
	if lang != "" {
		for _, b := range blocks {
			if b.Lang == lang {
				return b.Body
			}
		}
	}
	return blocks[0].Body
}
