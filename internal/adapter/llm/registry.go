package llm

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"agentmux/internal/domain"
	"agentmux/internal/infra/config"
)

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}

// Registry holds the configured LLM providers by name.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]domain.LLMProvider
	defaultName string
}

// NewRegistry creates an empty registry.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		providers:   make(map[string]domain.LLMProvider),
		defaultName: defaultName,
	}
}

// Register adds a provider under its own name.
func (r *Registry) Register(p domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.Name()]; exists {
		return fmt.Errorf("%w: provider %q", domain.ErrDuplicate, p.Name())
	}
	r.providers[p.Name()] = p
	return nil
}

// Get returns the named provider. An empty name selects the default.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	if name == "" {
		name = r.defaultName
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// Default returns the default provider, or nil when none is configured.
func (r *Registry) Default() domain.LLMProvider {
	p, err := r.Get("")
	if err != nil {
		return nil
	}
	return p
}

// List returns the registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewProvider constructs the raw provider for one config entry.
func NewProvider(pc config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	switch pc.Type {
	case "openai":
		return NewOpenAIProvider(pc, logger), nil
	case "anthropic":
		return NewAnthropicProvider(pc, logger), nil
	case "ollama":
		return NewOllamaProvider(pc, logger), nil
	case "bedrock":
		return NewBedrockProvider(pc, logger)
	default:
		return nil, fmt.Errorf("%w: provider type %q", domain.ErrInvalidInput, pc.Type)
	}
}

// Build constructs every configured provider, wraps each in a circuit
// breaker when enabled, and wraps the default provider with failover when
// fallbacks are configured.
func Build(cfg config.LLMConfig, logger *slog.Logger) (*Registry, error) {
	logger = orDiscard(logger)

	raw := make(map[string]domain.LLMProvider, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		p, err := NewProvider(pc, logger.With("provider", pc.Name))
		if err != nil {
			return nil, err
		}
		if cfg.CircuitBreaker.Enabled {
			p = NewCircuitBreakerProvider(p, cfg.CircuitBreaker, logger)
		}
		raw[pc.Name] = p
	}

	reg := NewRegistry(cfg.DefaultProvider)
	for _, pc := range cfg.Providers {
		p := raw[pc.Name]
		if pc.Name == cfg.DefaultProvider && cfg.Failover.Enabled && len(cfg.Failover.Fallbacks) > 0 {
			var fallbacks []domain.LLMProvider
			for _, name := range cfg.Failover.Fallbacks {
				fb, ok := raw[name]
				if !ok {
					return nil, fmt.Errorf("%w: fallback %q", domain.ErrProviderNotFound, name)
				}
				if name != pc.Name {
					fallbacks = append(fallbacks, fb)
				}
			}
			p = NewFailoverProvider(p, fallbacks, logger)
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
