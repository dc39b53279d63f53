// Package registry maps site names to their live context. It holds no
// lifecycle logic: callers pair Remove with Destroy.
package registry

import (
	"sort"
	"sync"

	"github.com/craftercms/engine-sub000/internal/site"
)

// Registry is a concurrency-safe map of site name to context.
type Registry struct {
	mu       sync.RWMutex
	contexts map[string]*site.Context
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{contexts: make(map[string]*site.Context)}
}

// Get returns the context registered for name.
func (r *Registry) Get(name string) (*site.Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contexts[name]
	return c, ok
}

// Put registers c under its name and returns the context it replaced, if any.
func (r *Registry) Put(c *site.Context) (*site.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.contexts[c.Name()]
	r.contexts[c.Name()] = c
	return old, ok
}

// Remove unregisters name and returns the context that was registered.
func (r *Registry) Remove(name string) (*site.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contexts[name]
	if ok {
		delete(r.contexts, name)
	}
	return c, ok
}

// RemoveIf unregisters name only while c is the registered context.
func (r *Registry) RemoveIf(name string, c *site.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.contexts[name] != c {
		return false
	}
	delete(r.contexts, name)
	return true
}

// List returns the registered contexts ordered by site name.
func (r *Registry) List() []*site.Context {
	r.mu.RLock()
	out := make([]*site.Context, 0, len(r.contexts))
	for _, c := range r.contexts {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns the registered site names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.contexts))
	for n := range r.contexts {
		names = append(names, n)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len returns the number of registered contexts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}
