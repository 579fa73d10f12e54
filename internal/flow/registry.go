package flow

import (
	"slices"
	"sort"
	"sync"
	"time"
)

// Registry hands out scopes by name. Scopes are created on first use and
// share the registry's options.
type Registry struct {
	opts Options

	mu     sync.Mutex
	scopes map[string]*Scope
	hooks  []func(*Scope)
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:   opts,
		scopes: make(map[string]*Scope),
	}
}

// OnCreate registers fn to run for every scope the registry creates from
// now on, and for those that already exist.
func (r *Registry) OnCreate(fn func(*Scope)) {
	r.mu.Lock()
	r.hooks = append(r.hooks, fn)
	existing := make([]*Scope, 0, len(r.scopes))
	for _, s := range r.scopes {
		existing = append(existing, s)
	}
	r.mu.Unlock()

	for _, s := range existing {
		fn(s)
	}
}

// Scope returns the scope called name, creating it if needed.
func (r *Registry) Scope(name string) *Scope {
	r.mu.Lock()
	if s, ok := r.scopes[name]; ok {
		r.mu.Unlock()
		return s
	}
	s := NewScope(name, r.opts)
	r.scopes[name] = s
	hooks := slices.Clone(r.hooks)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn(s)
	}
	return s
}

// SetDelay changes the disappearing delay of every scope, including those
// created later.
func (r *Registry) SetDelay(d time.Duration) {
	r.mu.Lock()
	r.opts.Delay = d
	scopes := make([]*Scope, 0, len(r.scopes))
	for _, s := range r.scopes {
		scopes = append(scopes, s)
	}
	r.mu.Unlock()

	for _, s := range scopes {
		s.SetDelay(d)
	}
}

// Lookup returns the scope called name if it exists.
func (r *Registry) Lookup(name string) (*Scope, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scopes[name]
	return s, ok
}

// Names returns the names of all scopes, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.scopes))
	for name := range r.scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every scope and forgets them.
func (r *Registry) Close() {
	r.mu.Lock()
	scopes := r.scopes
	r.scopes = make(map[string]*Scope)
	r.mu.Unlock()

	for _, s := range scopes {
		s.Close()
	}
}
