package engine

import (
	"fmt"
	"sort"
	"sync"
)

// Provider creates an engine instance speaking the operation set of version v.
// The returned value must also implement the version's interface (V21, V211
// or V22).
type Provider func(options map[string]string, v Version) (Core, error)

// Registry holds named engine backends.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// Backends is the process-wide backend registry. Backend packages register
// themselves from init.
var Backends = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a named backend.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Factory returns a constructor bound to the named backend and its options.
func (r *Registry) Factory(name string, options map[string]string) (Factory, error) {
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown engine backend %q", name)
	}
	return func(v Version) (Core, error) { return p(options, v) }, nil
}

// List returns the registered backend names, sorted.
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

// Factory creates one engine instance for a version.
type Factory func(v Version) (Core, error)
