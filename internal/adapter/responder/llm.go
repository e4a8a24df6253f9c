// Package responder provides the domain.Responder implementations that
// answer for configured agents.
package responder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"agentmux/internal/domain"
	"agentmux/internal/infra/tokens"
	"agentmux/internal/infra/tracer"
)

const (
	defaultMaxTokens       = 4096
	defaultKnowledgeTokens = 2000
)

// Option configures an LLMResponder.
type Option func(*LLMResponder)

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(r *LLMResponder) { r.model = model }
}

// WithMaxTokens sets the completion limit. Zero keeps the default.
func WithMaxTokens(n int) Option {
	return func(r *LLMResponder) {
		if n > 0 {
			r.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(r *LLMResponder) { r.temperature = t }
}

// WithTimeout bounds each Process call. Zero means no bound beyond ctx.
func WithTimeout(d time.Duration) Option {
	return func(r *LLMResponder) { r.timeout = d }
}

// WithKnowledgeBudget caps the knowledge context at n tokens.
func WithKnowledgeBudget(n int) Option {
	return func(r *LLMResponder) { r.knowledgeTokens = n }
}

// WithTokenCounter replaces the shared tiktoken counter.
func WithTokenCounter(c *tokens.Counter) Option {
	return func(r *LLMResponder) { r.counter = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *LLMResponder) { r.logger = logger }
}

// LLMResponder answers for one agent by calling an LLM with the agent's
// system prompt, the retrieved knowledge and any earlier agents' replies.
type LLMResponder struct {
	agentID         string
	label           string
	systemPrompt    string
	provider        domain.LLMProvider
	model           string
	maxTokens       int
	temperature     float64
	timeout         time.Duration
	knowledgeTokens int
	counter         *tokens.Counter
	logger          *slog.Logger
}

// NewLLMResponder creates a responder for the agent described by desc.
func NewLLMResponder(desc domain.AgentDescriptor, systemPrompt string, provider domain.LLMProvider, opts ...Option) *LLMResponder {
	label := desc.Name
	if label == "" {
		label = desc.ID
	}
	r := &LLMResponder{
		agentID:         desc.ID,
		label:           label,
		systemPrompt:    systemPrompt,
		provider:        provider,
		maxTokens:       defaultMaxTokens,
		knowledgeTokens: defaultKnowledgeTokens,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.counter == nil {
		r.counter = tokens.Default()
	}
	return r
}

// Process implements domain.Responder.
func (r *LLMResponder) Process(ctx context.Context, req domain.ResponderRequest) (*domain.ResponderResult, error) {
	parent := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ctx, span := tracer.StartSpan(ctx, "responder.process", trace.WithAttributes(
		tracer.StringAttr("agent.id", r.agentID),
		tracer.StringAttr("llm.provider", r.provider.Name()),
	))
	defer span.End()

	system := r.buildSystemPrompt(req.KnowledgeContext)
	user := r.buildUserMessage(req.Query, req.Collaboration)
	span.SetAttributes(tracer.IntAttr("prompt.tokens_estimated", r.counter.Count(system)+r.counter.Count(user)))

	resp, err := r.provider.Chat(ctx, domain.ChatRequest{
		Model: r.model,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: system},
			{Role: domain.RoleUser, Content: user},
		},
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
			err = fmt.Errorf("%w: %s did not answer within %s", domain.ErrTimeout, r.label, r.timeout)
		}
		tracer.RecordError(span, err)
		return nil, domain.WrapOp(r.label, err)
	}
	tracer.SetOK(span)

	r.logger.Debug("agent answered",
		"agent_id", r.agentID,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return ParseReply(resp.Message.Content), nil
}

// buildSystemPrompt appends knowledge context, trimmed to the token budget.
func (r *LLMResponder) buildSystemPrompt(knowledge string) string {
	knowledge = strings.TrimSpace(knowledge)
	if knowledge == "" {
		return r.systemPrompt
	}
	knowledge = r.counter.Truncate(knowledge, r.knowledgeTokens)
	return r.systemPrompt + "\n\n**Knowledge Base Context**:\n" + knowledge
}

// buildUserMessage renders the query and, in sequential runs, what earlier
// agents said.
func (r *LLMResponder) buildUserMessage(query string, collab []domain.CollaborationEntry) string {
	var b strings.Builder
	b.WriteString("User Query: ")
	b.WriteString(query)
	b.WriteString("\n\n")

	if len(collab) == 0 {
		return b.String()
	}
	b.WriteString("**Previous Agent Insights** (use these to build your response):\n\n")
	for _, c := range collab {
		agent := c.Agent
		if agent == "" {
			agent = "Unknown Agent"
		}
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", agent, c.Response)
	}
	b.WriteString("**Your Task**:\n")
	fmt.Fprintf(&b, "Review the insights above and provide your %s expertise. ", r.label)
	b.WriteString("Build upon what others have said, add what your specialty contributes, and ")
	b.WriteString("identify if other agents should be consulted for a complete solution.\n")
	return b.String()
}

// ParseReply derives the structured flags of a responder result from the
// reply text.
func ParseReply(text string) *domain.ResponderResult {
	res := &domain.ResponderResult{Content: text, Success: true}
	if strings.Contains(text, "```") {
		res.HasCode = true
		for _, cb := range domain.ExtractCodeBlocks(text) {
			res.CodeBlocks = append(res.CodeBlocks, cb.Body)
		}
	}
	lower := strings.ToLower(text)
	res.SuggestsCollaboration = strings.Contains(lower, "other agent") || strings.Contains(lower, "collaborate")
	return res
}
