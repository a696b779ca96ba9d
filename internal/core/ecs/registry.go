package ecs

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a zero-state component.
type Factory func() Component

// Registry maps wire type names to component factories. Safe for
// concurrent use; registration order does not matter.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory, 16),
	}
}

// Register installs factory under name. A second registration of the same
// name is rejected and leaves the first in place.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("register component type %q: empty name or nil factory", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, name)
	}
	r.factories[name] = factory
	return nil
}

// RegisterType registers a factory for T under the name T reports.
func RegisterType[T Component](r *Registry, factory func() T) error {
	name := factory().TypeName()
	return r.Register(name, func() Component { return factory() })
}

// Create builds a new component by type name.
func (r *Registry) Create(name string) (Component, bool) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return f(), true
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
