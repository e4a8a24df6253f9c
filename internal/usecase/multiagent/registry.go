package multiagent

import (
	"log/slog"
	"strings"
	"sync"

	"agentmux/internal/domain"
)

// Agent bundles a descriptor with the responder that answers for it.
type Agent struct {
	Descriptor domain.AgentDescriptor
	Responder  domain.Responder
}

// Registry holds the routable agents in declaration order. It is populated
// at startup and only read afterwards.
type Registry struct {
	mu        sync.RWMutex
	agents    map[string]*Agent
	order     []string
	defaultID string
	logger    *slog.Logger
}

// NewRegistry creates a Registry with the given default agent ID.
func NewRegistry(defaultID string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = discardLogger()
	}
	return &Registry{
		agents:    make(map[string]*Agent),
		defaultID: defaultID,
		logger:    logger,
	}
}

// Register adds an agent. Returns ErrDuplicate if the ID is taken.
// responder may be nil for an agent that can be routed to but not executed.
func (r *Registry) Register(desc domain.AgentDescriptor, responder domain.Responder) error {
	if strings.TrimSpace(desc.ID) == "" {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "agent id is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[desc.ID]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, desc.ID)
	}
	desc.Keywords = append([]string(nil), desc.Keywords...)
	r.agents[desc.ID] = &Agent{Descriptor: desc, Responder: responder}
	r.order = append(r.order, desc.ID)
	r.logger.Info("agent registered", "agent_id", desc.ID, "name", desc.Name, "keywords", len(desc.Keywords))
	return nil
}

// Get returns the agent for the given ID, or ErrUnknownAgent.
func (r *Registry) Get(agentID string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[agentID]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrUnknownAgent, agentID)
	}
	return a, nil
}

// Has reports whether agentID is registered.
func (r *Registry) Has(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[agentID]
	return ok
}

// DefaultID returns the designated default agent ID.
func (r *Registry) DefaultID() string { return r.defaultID }

// Descriptors returns every descriptor in declaration order.
func (r *Registry) Descriptors() []domain.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.AgentDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id].Descriptor)
	}
	return out
}

// Responder returns the responder registered for agentID.
func (r *Registry) Responder(agentID string) (domain.Responder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[agentID]
	if !ok || a.Responder == nil {
		return nil, false
	}
	return a.Responder, true
}

// Label returns the display name for agentID, or the ID itself.
func (r *Registry) Label(agentID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if a, ok := r.agents[agentID]; ok && a.Descriptor.Name != "" {
		return a.Descriptor.Name
	}
	return agentID
}

// Validate checks that the default agent is registered.
func (r *Registry) Validate() error {
	if !r.Has(r.defaultID) {
		return domain.NewDomainError("Registry.Validate", domain.ErrNoDefaultAgent, r.defaultID)
	}
	return nil
}
