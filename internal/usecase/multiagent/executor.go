package multiagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"agentmux/internal/domain"
	"agentmux/internal/infra/metrics"
	"agentmux/internal/infra/tracer"
)

const defaultParallelLimit = 4

// AgentLookup resolves responders and display labels by agent ID.
type AgentLookup interface {
	Responder(agentID string) (domain.Responder, bool)
	Label(agentID string) string
}

// Strategy drives one collaboration session to a terminal state.
type Strategy interface {
	Execute(ctx context.Context, session *domain.CollaborationSession, agents AgentLookup, retriever domain.Retriever) *domain.CollaborationSession
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithParallelLimit caps concurrent responder calls in parallel mode.
func WithParallelLimit(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.parallelLimit = n
		}
	}
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// WithExecutorMetrics sets the metrics sink.
func WithExecutorMetrics(m *metrics.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithExecutorEventBus publishes an agent.responded event per responder call.
func WithExecutorEventBus(bus domain.EventBus) ExecutorOption {
	return func(e *Executor) { e.bus = bus }
}

// Executor holds the shared plumbing of the three strategies.
type Executor struct {
	parallelLimit int
	logger        *slog.Logger
	metrics       *metrics.Metrics
	bus           domain.EventBus
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		parallelLimit: defaultParallelLimit,
		logger:        discardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Strategy returns the strategy for mode. Unknown modes run as single.
func (e *Executor) Strategy(mode domain.Mode) Strategy {
	switch mode {
	case domain.ModeSequential:
		return &SequentialStrategy{exec: e}
	case domain.ModeParallel:
		return &ParallelStrategy{exec: e}
	default:
		return &SingleStrategy{exec: e}
	}
}

// Run executes session with the strategy matching its mode.
func (e *Executor) Run(ctx context.Context, session *domain.CollaborationSession, agents AgentLookup, retriever domain.Retriever) *domain.CollaborationSession {
	return e.Strategy(session.Mode).Execute(ctx, session, agents, retriever)
}

// SingleStrategy invokes only the primary agent.
type SingleStrategy struct{ exec *Executor }

func (s *SingleStrategy) Execute(ctx context.Context, session *domain.CollaborationSession, agents AgentLookup, retriever domain.Retriever) *domain.CollaborationSession {
	responder, ok := s.exec.resolvePrimary(session, agents)
	if !ok {
		return session
	}
	kb := s.exec.enrich(ctx, retriever, session.Query, session.Primary)
	msg := s.exec.invoke(ctx, session.ID, session.Primary, agents.Label(session.Primary), responder,
		domain.ResponderRequest{Query: session.Query, KnowledgeContext: kb})
	s.exec.append(session, msg)
	s.exec.finish(session)
	return session
}

// SequentialStrategy runs [primary] + supporting in order, each agent seeing
// every earlier agent's output.
type SequentialStrategy struct{ exec *Executor }

func (s *SequentialStrategy) Execute(ctx context.Context, session *domain.CollaborationSession, agents AgentLookup, retriever domain.Retriever) *domain.CollaborationSession {
	if _, ok := s.exec.resolvePrimary(session, agents); !ok {
		return session
	}
	for _, id := range sessionAgents(session) {
		responder, ok := agents.Responder(id)
		if !ok {
			s.exec.logger.Debug("skipping unregistered agent", "agent_id", id, "session_id", session.ID)
			continue
		}
		kb := s.exec.enrich(ctx, retriever, session.Query, id)
		req := domain.ResponderRequest{
			Query:            session.Query,
			KnowledgeContext: kb,
			Collaboration:    session.ContextFor(id),
		}
		s.exec.append(session, s.exec.invoke(ctx, session.ID, id, agents.Label(id), responder, req))
	}
	s.exec.finish(session)
	return session
}

// ParallelStrategy runs [primary] + supporting independently and appends
// their messages in declared order.
type ParallelStrategy struct{ exec *Executor }

func (s *ParallelStrategy) Execute(ctx context.Context, session *domain.CollaborationSession, agents AgentLookup, retriever domain.Retriever) *domain.CollaborationSession {
	if _, ok := s.exec.resolvePrimary(session, agents); !ok {
		return session
	}

	type task struct {
		id        string
		responder domain.Responder
	}
	var tasks []task
	for _, id := range sessionAgents(session) {
		responder, ok := agents.Responder(id)
		if !ok {
			s.exec.logger.Debug("skipping unregistered agent", "agent_id", id, "session_id", session.ID)
			continue
		}
		tasks = append(tasks, task{id: id, responder: responder})
	}

	results := make([]domain.AgentMessage, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.exec.parallelLimit)
	for i, t := range tasks {
		g.Go(func() error {
			kb := s.exec.enrich(gctx, retriever, session.Query, t.id)
			results[i] = s.exec.invoke(gctx, session.ID, t.id, agents.Label(t.id), t.responder,
				domain.ResponderRequest{Query: session.Query, KnowledgeContext: kb})
			return nil
		})
	}
	_ = g.Wait()

	for _, msg := range results {
		s.exec.append(session, msg)
	}
	s.exec.finish(session)
	return session
}

func sessionAgents(session *domain.CollaborationSession) []string {
	return append([]string{session.Primary}, session.Supporting...)
}

// resolvePrimary fails the session when its primary agent has no responder.
func (e *Executor) resolvePrimary(session *domain.CollaborationSession, agents AgentLookup) (domain.Responder, bool) {
	responder, ok := agents.Responder(session.Primary)
	if ok {
		return responder, true
	}
	err := domain.NewDomainError("Executor.Execute", domain.ErrUnknownAgent, session.Primary)
	e.logger.Warn("primary agent not resolvable", "agent_id", session.Primary, "session_id", session.ID)
	if ferr := session.Fail(err.Error()); ferr != nil {
		e.logger.Warn("failed to mark session failed", "session_id", session.ID, "error", ferr)
	}
	return nil, false
}

// enrich fetches knowledge context. Failures, panics included, count as no
// context.
func (e *Executor) enrich(ctx context.Context, retriever domain.Retriever, query, agentID string) (text string) {
	if retriever == nil {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("knowledge retrieval panicked", "agent_id", agentID, "panic", r)
			text = ""
		}
	}()
	text, err := retriever.Retrieve(ctx, query, agentID)
	if err != nil {
		e.logger.Debug("knowledge retrieval failed", "agent_id", agentID, "error", err)
		return ""
	}
	return text
}

// invoke calls one responder and converts the outcome into a message.
func (e *Executor) invoke(ctx context.Context, sessionID, agentID, label string, responder domain.Responder, req domain.ResponderRequest) domain.AgentMessage {
	ctx, span := tracer.StartSpan(ctx, "agent.process", trace.WithAttributes(
		tracer.StringAttr("agent.id", agentID),
		tracer.StringAttr("session.id", sessionID),
		tracer.IntAttr("collaboration.entries", len(req.Collaboration)),
	))
	defer span.End()

	start := time.Now()
	msg := domain.AgentMessage{AgentID: agentID, AgentLabel: label}

	var res *domain.ResponderResult
	err := ctx.Err()
	if err == nil {
		res, err = safeProcess(ctx, responder, req)
	}

	outcome := "ok"
	switch {
	case err != nil && ctx.Err() != nil:
		outcome = "cancelled"
		msg.Kind = domain.KindError
		msg.Content = "Error: " + domain.ErrCancelled.Error()
		msg.Metadata = domain.MessageMetadata{Error: domain.ErrCancelled.Error()}
		tracer.RecordError(span, fmt.Errorf("%w: %w", domain.ErrCancelled, err))
	case err != nil:
		outcome = "error"
		msg.Kind = domain.KindError
		msg.Content = "Error: " + err.Error()
		msg.Metadata = domain.MessageMetadata{Error: err.Error()}
		tracer.RecordError(span, err)
		e.logger.Warn("responder failed", "agent_id", agentID, "session_id", sessionID, "error", err)
	default:
		msg.Kind = domain.KindResponse
		msg.Content = res.Content
		msg.Metadata = domain.MessageMetadata{
			Success:               res.Success,
			HasCode:               res.HasCode || strings.Contains(res.Content, "```"),
			SuggestsCollaboration: res.SuggestsCollaboration,
		}
		tracer.SetOK(span)
	}
	msg.Timestamp = time.Now()

	elapsed := time.Since(start)
	e.metrics.RecordResponderCall(agentID, outcome)
	e.logger.Debug("responder finished", "agent_id", agentID, "session_id", sessionID, "outcome", outcome, "duration", elapsed)
	if e.bus != nil {
		e.bus.Publish(ctx, domain.NewEvent(domain.EventAgentResponded, sessionID, domain.AgentRespondedPayload{
			AgentID:    agentID,
			Kind:       msg.Kind,
			DurationMs: elapsed.Milliseconds(),
		}))
	}
	return msg
}

// safeProcess calls the responder, turning a panic or an empty result into
// an error.
func safeProcess(ctx context.Context, responder domain.Responder, req domain.ResponderRequest) (res *domain.ResponderResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("%w: panic: %v", domain.ErrResponderFailed, r)
		}
	}()
	res, err = responder.Process(ctx, req)
	switch {
	case err != nil:
	case res == nil:
		err = errors.New("responder returned no result")
	case !res.Success:
		reason := strings.TrimSpace(res.Content)
		if reason == "" {
			reason = "responder reported failure"
		}
		res, err = nil, fmt.Errorf("%w: %s", domain.ErrResponderFailed, reason)
	}
	return res, err
}

func (e *Executor) append(session *domain.CollaborationSession, msg domain.AgentMessage) {
	if err := session.AddMessage(msg); err != nil {
		e.logger.Warn("dropping message for closed session", "session_id", session.ID, "agent_id", msg.AgentID, "error", err)
	}
}

func (e *Executor) finish(session *domain.CollaborationSession) {
	if err := session.Complete(); err != nil {
		e.logger.Warn("failed to complete session", "session_id", session.ID, "error", err)
	}
}
