package multiagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"agentmux/internal/domain"
	"agentmux/internal/infra/metrics"
	"agentmux/internal/infra/tracer"
)

// QueryClassifier produces a routing decision and the query the responders
// should see.
type QueryClassifier interface {
	Classify(ctx context.Context, query string) (domain.RoutingDecision, string)
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithRetriever sets the knowledge enrichment collaborator.
func WithRetriever(r domain.Retriever) OrchestratorOption {
	return func(o *Orchestrator) { o.retriever = r }
}

// WithSessionStore persists every finished session.
func WithSessionStore(s domain.SessionStore) OrchestratorOption {
	return func(o *Orchestrator) { o.store = s }
}

// WithEventBus publishes query.routed and collaboration.completed events.
func WithEventBus(bus domain.EventBus) OrchestratorOption {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithOrchestratorMetrics sets the metrics sink.
func WithOrchestratorMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// Orchestrator is the entry point: classify, execute, project.
type Orchestrator struct {
	classifier QueryClassifier
	registry   *Registry
	executor   *Executor
	retriever  domain.Retriever
	store      domain.SessionStore
	bus        domain.EventBus
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(classifier QueryClassifier, registry *Registry, executor *Executor, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		classifier: classifier,
		registry:   registry,
		executor:   executor,
		logger:     discardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessQuery runs query to completion and returns the result projection.
// It never panics and never returns an error; failures are reported in the
// Result.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query string) domain.Result {
	_, res := o.Run(ctx, query)
	return res
}

// Run is ProcessQuery that also returns the finished session. The session
// is nil only when the run failed before one was created.
func (o *Orchestrator) Run(ctx context.Context, query string) (session *domain.CollaborationSession, result domain.Result) {
	ctx, span := tracer.StartSpan(ctx, "orchestrator.process_query")
	defer span.End()

	start := time.Now()
	var decision domain.RoutingDecision

	defer func() {
		status := "completed"
		if r := recover(); r != nil {
			mode := decision.Mode
			if mode == "" {
				mode = domain.ModeSingle
			}
			result = domain.Result{
				Success:        false,
				Mode:           mode,
				AgentsUsed:     []string{},
				Confidence:     decision.Confidence,
				Reasoning:      decision.Reasoning,
				ExecutionError: fmt.Sprintf("execution error: %v", r),
			}
			if session != nil {
				result.SessionID = session.ID
				_ = session.Fail(result.ExecutionError)
			}
			status = "error"
			tracer.RecordError(span, errors.New(result.ExecutionError))
			o.logger.Error("orchestration panicked", "panic", r)
		} else if !result.Success {
			status = "failed"
		}
		o.metrics.ObserveRun(string(result.Mode), status, time.Since(start))
	}()

	decision, effective := o.classifier.Classify(ctx, query)
	span.SetAttributes(
		tracer.StringAttr("route.primary", decision.Primary),
		tracer.StringsAttr("route.supporting", decision.Supporting),
		tracer.StringAttr("route.mode", string(decision.Mode)),
	)

	session = domain.NewSession(effective, decision)
	o.publish(ctx, domain.EventQueryRouted, session.ID, domain.QueryRoutedPayload{Query: effective, Decision: decision})
	o.logger.Info("query routed",
		"session_id", session.ID,
		"primary", decision.Primary,
		"supporting", decision.Supporting,
		"mode", decision.Mode,
		"confidence", decision.Confidence,
	)

	o.executor.Run(ctx, session, o.registry, o.retriever)
	result = BuildResult(session, decision, o.outputKind)

	o.persist(ctx, session)
	o.publish(ctx, domain.EventCollaborationCompleted, session.ID, domain.CollaborationCompletedPayload{
		Status:     session.Status,
		Mode:       session.Mode,
		AgentsUsed: result.AgentsUsed,
		DurationMs: time.Since(start).Milliseconds(),
	})

	if result.Success {
		tracer.SetOK(span)
	} else {
		span.AddEvent("session failed", trace.WithAttributes(tracer.StringAttr("error", result.ExecutionError)))
	}
	o.logger.Info("collaboration finished",
		"session_id", session.ID,
		"status", session.Status,
		"agents", result.AgentsUsed,
		"duration", time.Since(start),
	)
	return session, result
}

func (o *Orchestrator) outputKind(agentID string) string {
	a, err := o.registry.Get(agentID)
	if err != nil {
		return ""
	}
	return a.Descriptor.Output
}

// persist saves the session. A failed save only logs.
func (o *Orchestrator) persist(ctx context.Context, session *domain.CollaborationSession) {
	if o.store == nil {
		return
	}
	if err := o.store.Save(context.WithoutCancel(ctx), session); err != nil {
		o.logger.Warn("failed to persist session", "session_id", session.ID, "error", err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, t domain.EventType, sessionID string, payload any) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(ctx, domain.NewEvent(t, sessionID, payload))
}

// Route classifies query without executing it. It returns the decision
// and the query the responders would see.
func (o *Orchestrator) Route(ctx context.Context, query string) (domain.RoutingDecision, string) {
	return o.classifier.Classify(ctx, query)
}

// Agents returns the registered descriptors in declaration order.
func (o *Orchestrator) Agents() []domain.AgentDescriptor {
	return o.registry.Descriptors()
}

// Session loads a persisted session by ID.
func (o *Orchestrator) Session(ctx context.Context, id string) (*domain.CollaborationSession, error) {
	if o.store == nil {
		return nil, domain.NewDomainError("Orchestrator.Session", domain.ErrSessionNotFound, "no session store configured")
	}
	return o.store.Get(ctx, id)
}

// History lists recent persisted sessions, newest first.
func (o *Orchestrator) History(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	if o.store == nil {
		return nil, nil
	}
	return o.store.List(ctx, limit)
}

// Search finds persisted sessions matching text.
func (o *Orchestrator) Search(ctx context.Context, text string, limit int) ([]domain.SessionSummary, error) {
	if o.store == nil {
		return nil, nil
	}
	return o.store.Search(ctx, text, limit)
}
