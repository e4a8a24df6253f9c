package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"agentmux/internal/adapter/llm"
	"agentmux/internal/adapter/responder"
	"agentmux/internal/adapter/store"
	"agentmux/internal/domain"
	"agentmux/internal/infra/config"
	"agentmux/internal/infra/logger"
	"agentmux/internal/infra/metrics"
	"agentmux/internal/infra/tokens"
	"agentmux/internal/infra/tracer"
	"agentmux/internal/usecase/eventbus"
	"agentmux/internal/usecase/multiagent"
)

const eventHistory = 256

// app is the fully wired runtime shared by every subcommand.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	bus       *eventbus.Bus
	orch      *multiagent.Orchestrator
	store     *store.SQLiteSessionStore // nil when store.enabled is false
	knowledge *knowledgeBackend         // nil when knowledge.backend is none

	closers []func() error
}

// appOption adjusts wiring for a particular subcommand.
type appOption func(*appSettings)

type appSettings struct {
	logger *slog.Logger
}

// withLogger replaces the configured logger.
func withLogger(l *slog.Logger) appOption {
	return func(s *appSettings) { s.logger = l }
}

// newApp wires config into a runnable orchestrator. Close releases what
// it opened.
func newApp(ctx context.Context, cfg *config.Config, opts ...appOption) (a *app, err error) {
	var settings appSettings
	for _, o := range opts {
		o(&settings)
	}

	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	a.logger = settings.logger
	if a.logger == nil {
		l, closeLog, err := logger.New(cfg.Logger)
		if err != nil {
			return a, err
		}
		a.logger = l
		a.closers = append(a.closers, closeLog)
	}

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return a, fmt.Errorf("tracer: %w", err)
	}
	a.closers = append(a.closers, func() error { return shutdownTracer(context.Background()) })

	a.metrics = metrics.Default()
	a.bus = eventbus.New(a.logger, eventbus.WithHistory(eventHistory))
	stopLog := eventbus.LogEvents(a.bus, a.logger)
	a.closers = append(a.closers, func() error {
		stopLog()
		a.bus.Close()
		return nil
	})

	providers, err := llm.Build(cfg.LLM, a.logger)
	if err != nil {
		return a, fmt.Errorf("llm: %w", err)
	}

	registry, err := buildAgents(cfg, providers, a.logger)
	if err != nil {
		return a, err
	}

	classifierOpts := []multiagent.ClassifierOption{
		multiagent.WithPrefixOverride(cfg.Router.PrefixOverride),
		multiagent.WithClassifyTimeout(cfg.Router.Timeout),
		multiagent.WithClassifierLogger(a.logger),
		multiagent.WithClassifierMetrics(a.metrics),
	}
	if p := providerFor(providers, cfg.Router.Provider); p != nil {
		classifierOpts = append(classifierOpts, multiagent.WithProvider(p, cfg.Router.Model))
	} else {
		a.logger.Info("no reasoning provider configured, routing by keywords")
	}
	classifier := multiagent.NewClassifier(registry, classifierOpts...)

	executor := multiagent.NewExecutor(
		multiagent.WithParallelLimit(cfg.Execution.ParallelLimit),
		multiagent.WithExecutorLogger(a.logger),
		multiagent.WithExecutorMetrics(a.metrics),
		multiagent.WithExecutorEventBus(a.bus),
	)

	orchOpts := []multiagent.OrchestratorOption{
		multiagent.WithEventBus(a.bus),
		multiagent.WithOrchestratorMetrics(a.metrics),
		multiagent.WithOrchestratorLogger(a.logger),
	}

	kb, err := newKnowledgeBackend(ctx, cfg.Knowledge, a.logger)
	if err != nil {
		return a, fmt.Errorf("knowledge: %w", err)
	}
	if kb != nil {
		a.knowledge = kb
		orchOpts = append(orchOpts, multiagent.WithRetriever(kb.retriever))
	}

	if cfg.Store.Enabled {
		st, err := store.NewSQLiteSessionStore(cfg.Store.Path)
		if err != nil {
			return a, fmt.Errorf("session store: %w", err)
		}
		a.store = st
		a.closers = append(a.closers, st.Close)
		orchOpts = append(orchOpts, multiagent.WithSessionStore(st))
	}

	a.orch = multiagent.NewOrchestrator(classifier, registry, executor, orchOpts...)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// buildAgents registers one responder per configured agent. Agents whose
// provider is unavailable answer offline from the knowledge base.
func buildAgents(cfg *config.Config, providers *llm.Registry, logger *slog.Logger) (*multiagent.Registry, error) {
	registry := multiagent.NewRegistry(cfg.Router.DefaultAgent, logger)
	counter := tokens.Default()

	for _, ac := range cfg.Agents {
		desc := domain.AgentDescriptor{
			ID:          ac.ID,
			Name:        ac.Name,
			Keywords:    ac.Keywords,
			Description: ac.Description,
			Output:      ac.Output,
		}
		if desc.Name == "" {
			desc.Name = ac.ID
		}

		var r domain.Responder
		if p := providerFor(providers, ac.Provider); p != nil {
			opts := []responder.Option{
				responder.WithModel(ac.Model),
				responder.WithTimeout(cfg.Execution.ResponderTimeout),
				responder.WithTokenCounter(counter),
				responder.WithLogger(logger),
			}
			if ac.MaxTokens > 0 {
				opts = append(opts, responder.WithMaxTokens(ac.MaxTokens))
			}
			if ac.Temperature > 0 {
				opts = append(opts, responder.WithTemperature(ac.Temperature))
			}
			r = responder.NewLLMResponder(desc, ac.SystemPrompt, p, opts...)
		} else {
			r = responder.NewOffline(desc.Name)
		}

		if err := registry.Register(desc, r); err != nil {
			return nil, fmt.Errorf("agent %s: %w", ac.ID, err)
		}
	}

	if err := registry.Validate(); err != nil {
		return nil, err
	}
	return registry, nil
}

// providerFor resolves a named provider, falling back to the default when
// name is empty. It returns nil when nothing is configured.
func providerFor(providers *llm.Registry, name string) domain.LLMProvider {
	if name == "" {
		return providers.Default()
	}
	p, err := providers.Get(name)
	if err != nil {
		return nil
	}
	return p
}
