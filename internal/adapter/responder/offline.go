package responder

import (
	"context"
	"strings"

	"agentmux/internal/domain"
)

// Offline answers without a language model. It returns the retrieved
// knowledge when there is any, so a knowledge-only deployment still gives
// useful replies.
type Offline struct {
	label string
}

// NewOffline creates an Offline responder for the named agent.
func NewOffline(label string) *Offline {
	return &Offline{label: label}
}

// Process implements domain.Responder.
func (o *Offline) Process(_ context.Context, req domain.ResponderRequest) (*domain.ResponderResult, error) {
	kb := strings.TrimSpace(req.KnowledgeContext)
	if kb == "" {
		return &domain.ResponderResult{
			Content: "No language model configured for " + o.label + ".",
			Success: true,
		}, nil
	}
	return ParseReply(kb), nil
}
