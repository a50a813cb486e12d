package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"promptpilot/internal/models"
)

// ErrUnknownProvider indicates no adapter is registered for a provider family.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrDuplicateProvider indicates an attempt to register the same family twice.
var ErrDuplicateProvider = errors.New("provider already registered")

// Adapter serves requests for one provider family.
type Adapter interface {
	Name() string
	Complete(ctx context.Context, req models.ProviderRequest) (string, error)
	// Stream never returns an error directly: upstream failures arrive as a
	// single failed fragment.
	Stream(ctx context.Context, req models.ProviderRequest) models.Stream
}

// Registry maintains a mapping of provider families to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.Provider]Adapter
}

// NewRegistry constructs an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[models.Provider]Adapter),
	}
}

// Register binds an adapter to a provider family.
func (r *Registry) Register(kind models.Provider, a Adapter) error {
	if a == nil {
		return errors.New("adapter must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[kind]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, kind)
	}
	r.adapters[kind] = a
	return nil
}

// Lookup returns the adapter registered for kind.
func (r *Registry) Lookup(kind models.Provider) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, kind)
	}
	return a, nil
}
