package multiagent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"agentmux/internal/domain"
	"agentmux/internal/infra/metrics"
	"agentmux/internal/infra/tracer"
)

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithProvider sets the reasoning provider and the model passed to it.
// Without a provider the classifier routes by keywords only.
func WithProvider(p domain.LLMProvider, model string) ClassifierOption {
	return func(c *Classifier) {
		c.provider = p
		c.model = model
	}
}

// WithPrefixOverride enables or disables @agent prefix routing.
func WithPrefixOverride(enabled bool) ClassifierOption {
	return func(c *Classifier) { c.prefixEnabled = enabled }
}

// WithClassifyTimeout bounds the reasoning call. Zero means no bound.
func WithClassifyTimeout(d time.Duration) ClassifierOption {
	return func(c *Classifier) { c.timeout = d }
}

// WithClassifierLogger sets the logger.
func WithClassifierLogger(logger *slog.Logger) ClassifierOption {
	return func(c *Classifier) { c.logger = logger }
}

// WithClassifierMetrics sets the metrics sink.
func WithClassifierMetrics(m *metrics.Metrics) ClassifierOption {
	return func(c *Classifier) { c.metrics = m }
}

// Classifier turns a query into a RoutingDecision. It never returns an
// error: every failure degrades to keyword routing or the default agent.
type Classifier struct {
	registry      *Registry
	provider      domain.LLMProvider
	model         string
	timeout       time.Duration
	prefixEnabled bool
	prefix        *PrefixRouter
	keywords      *keywordIndex
	prompt        string
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

// NewClassifier creates a Classifier over the agents currently in registry.
func NewClassifier(registry *Registry, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		registry:      registry,
		prefixEnabled: true,
		logger:        discardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	descs := registry.Descriptors()
	c.keywords = newKeywordIndex(descs)
	c.prompt = buildClassifierPrompt(descs, registry.DefaultID())
	if c.prefixEnabled {
		c.prefix = NewPrefixRouterWithLogger(descs, c.logger)
	}
	return c
}

// Route returns the routing decision for query.
func (c *Classifier) Route(ctx context.Context, query string) domain.RoutingDecision {
	d, _ := c.Classify(ctx, query)
	return d
}

// Classify returns the routing decision and the query the responders should
// see, which differs from query only when an @agent prefix was stripped.
func (c *Classifier) Classify(ctx context.Context, query string) (decision domain.RoutingDecision, effective string) {
	ctx, span := tracer.StartSpan(ctx, "router.classify")
	defer span.End()

	effective = query
	defer func() {
		if r := recover(); r != nil {
			cause := fmt.Sprintf("panic: %v", r)
			tracer.RecordError(span, fmt.Errorf("%w: %s", domain.ErrClassification, cause))
			c.logger.Error("classifier panicked", "panic", r)
			decision = c.failed(cause)
			effective = query
		}
		decision.Normalize()
		span.SetAttributes(
			tracer.StringAttr("route.primary", decision.Primary),
			tracer.StringAttr("route.mode", string(decision.Mode)),
			tracer.StringAttr("route.source", string(decision.Source)),
			tracer.IntAttr("route.supporting", len(decision.Supporting)),
		)
		c.metrics.RecordDecision(string(decision.Source), string(decision.Mode), string(decision.Confidence))
		c.logger.Debug("query classified",
			"primary", decision.Primary,
			"supporting", decision.Supporting,
			"mode", decision.Mode,
			"confidence", decision.Confidence,
			"source", decision.Source,
		)
	}()

	if c.prefix != nil {
		if d, rest, ok := c.prefix.Route(query); ok {
			return d, rest
		}
	}

	if c.provider == nil {
		d := c.keywords.route(query, c.registry.DefaultID())
		d.Reasoning = domain.ErrNoProvider.Error() + "; " + d.Reasoning
		return d, query
	}

	reply, err := c.ask(ctx, query)
	if err != nil {
		tracer.RecordError(span, err)
		c.logger.Warn("classification call failed, using keyword fallback", "error", err)
		d := c.keywords.route(query, c.registry.DefaultID())
		d.Reasoning = "classification failed: " + err.Error() + "; " + d.Reasoning
		d.Source = domain.SourceFallback
		return d, query
	}

	d := parseDecision(reply, c.registry.Has, c.registry.DefaultID())
	if d.Primary == c.registry.DefaultID() && d.Confidence == domain.ConfidenceMedium {
		kd := c.keywords.route(query, c.registry.DefaultID())
		kd.Reasoning = "inconclusive classification; " + kd.Reasoning
		return kd, query
	}
	tracer.SetOK(span)
	return d, query
}

func (c *Classifier) ask(ctx context.Context, query string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.provider.Chat(ctx, domain.ChatRequest{
		Model: c.model,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: c.prompt},
			{Role: domain.RoleUser, Content: query},
		},
		MaxTokens:   300,
		Temperature: 0,
	})
	if err != nil {
		return "", domain.WrapOp("Classifier.ask", err)
	}
	if resp == nil {
		return "", domain.NewDomainError("Classifier.ask", domain.ErrProviderError, "empty response")
	}
	return resp.Message.Content, nil
}

// failed is the decision returned when classification cannot proceed.
func (c *Classifier) failed(cause string) domain.RoutingDecision {
	return domain.RoutingDecision{
		Primary:    c.registry.DefaultID(),
		Supporting: []string{},
		Mode:       domain.ModeSingle,
		Confidence: domain.ConfidenceLow,
		Reasoning:  "classification failed: " + cause,
		Source:     domain.SourceFallback,
	}
}
