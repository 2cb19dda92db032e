package agent

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Factory creates an Agent instance.
type Factory func() (Agent, error)

// Registry manages agent type registration and creation.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger.With(zap.String("component", "agent_registry")),
	}
}

// Register registers a factory for name, replacing any previous one.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[name] = factory
	r.logger.Debug("agent type registered", zap.String("type", name))
}

// RegisterAgent registers a shared instance. The agent must be safe for concurrent use.
func (r *Registry) RegisterAgent(name string, a Agent) {
	r.Register(name, func() (Agent, error) { return a, nil })
}

// Unregister removes an agent type from the registry.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.factories, name)
	r.logger.Debug("agent type unregistered", zap.String("type", name))
}

// Create creates a new agent instance of the given type.
func (r *Registry) Create(name string) (Agent, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}

	a, err := factory()
	if err != nil {
		return nil, fmt.Errorf("create agent %s: %w", name, err)
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrFactoryReturnedNil, name)
	}
	return a, nil
}

// IsRegistered checks if an agent type is registered.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[name]
	return exists
}

// ListTypes returns the registered agent types in sorted order.
func (r *Registry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
