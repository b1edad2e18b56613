// Package backends provides the persistence backends of a knowledge base and
// the type-keyed registry used to construct them from configuration.
package backends

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lumineer/alight"
	"github.com/lumineer/alight/config"
)

// Factory builds a backend from the session configuration.
type Factory func(cfg *config.Config) (alight.Backend, error)

// Registry maps backend type keys to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register ties a factory to a type key. The first registration for a key
// wins; later ones are ignored and reported as false.
func (r *Registry) Register(backendType string, f Factory) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[backendType]; exists {
		return false
	}
	r.factories[backendType] = f
	return true
}

// GetFactory returns the factory registered for backendType.
func (r *Registry) GetFactory(backendType string) (Factory, error) {
	r.mu.RLock()
	f, ok := r.factories[backendType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no backend registered for %q (have %v)", backendType, r.Types())
	}
	return f, nil
}

// Types lists the registered keys in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// New builds the backend selected by cfg.Backend.
func (r *Registry) New(cfg *config.Config) (alight.Backend, error) {
	f, err := r.GetFactory(cfg.Backend)
	if err != nil {
		return nil, err
	}
	return f(cfg)
}

var defaultRegistry = NewRegistry()

// Register adds a factory to the default registry and should be called for
// each backend type during app init.
func Register(backendType string, f Factory) bool {
	return defaultRegistry.Register(backendType, f)
}

// New builds the backend selected by cfg.Backend from the default registry.
// All expected backend types should be registered with [Register] or
// [RegisterBuiltins] before calling this function.
func New(cfg *config.Config) (alight.Backend, error) {
	return defaultRegistry.New(cfg)
}
