package provider

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Registry holds the configured completion backends and tracks which one is
// current. Selection never interrupts in-flight requests: callers resolve a
// provider once at generation start and hold that reference for the whole
// request, so a concurrent Select only affects requests resolved after it.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]ModelProvider
	order    []string
	current  string

	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		backends: make(map[string]ModelProvider),
		logger:   logger,
	}
}

// Register adds a backend under its descriptor ID. The first registered
// backend becomes current until Select is called.
func (r *Registry) Register(p ModelProvider) error {
	id := p.Descriptor().ID
	if id == "" {
		return fmt.Errorf("%w: empty provider ID", ErrUnknownProvider)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, id)
	}
	r.backends[id] = p
	r.order = append(r.order, id)
	if r.current == "" {
		r.current = id
	}
	r.logger.Info("provider registered",
		zap.String("provider", id),
		zap.String("kind", p.Descriptor().Kind))
	return nil
}

// List returns descriptors in registration order, marking the current one.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.backends[id].Descriptor())
	}
	return out
}

// CurrentID returns the ID of the current backend.
func (r *Registry) CurrentID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Select makes the named backend current. Unknown IDs leave the current
// selection untouched and return ErrUnknownProvider. Selecting the already
// current backend is a no-op.
func (r *Registry) Select(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[id]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	if r.current == id {
		return nil
	}
	prev := r.current
	r.current = id
	r.logger.Info("provider selected",
		zap.String("provider", id),
		zap.String("previous", prev))
	return nil
}

// Resolve returns the backend to use for a request: the override if given,
// otherwise the current backend. The returned provider stays valid for the
// life of the request regardless of later Select calls.
func (r *Registry) Resolve(override string) (ModelProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id := override
	if id == "" {
		id = r.current
	}
	p, exists := r.backends[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return p, nil
}
