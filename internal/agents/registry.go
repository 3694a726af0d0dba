package agents

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps hierarchical agent names (e.g. "enrichment.firmographic")
// to the constructor that builds them, tracking registration order via
// an `order []string` field that preserves the sequence constructors
// were registered in, independent of map iteration order.
type Registry struct {
	mu sync.RWMutex
	constructors map[string]AgentConstructor
	order []string
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]AgentConstructor)}
}

// Register binds name to constructor. A duplicate name is a programmer
// error, not a runtime condition a caller should recover from, so it
// panics rather than returning an error.
func (r *Registry) Register(name string, constructor AgentConstructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.constructors[name]; exists {
		panic(fmt.Sprintf("agents: duplicate registration for %q", name))
	}
	r.constructors[name] = constructor
	r.order = append(r.order, name)
}

// Build constructs the named agent via its registered constructor and
// shared Deps. When name was never registered it returns found=false and
// a nil error; turning that into a NotFoundErr-classified error is the
// caller's job, since Registry has no errors-package dependency of its own.
func (r *Registry) Build(name string, deps Deps) (Agent, bool, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	agent, err := ctor(deps)
	return agent, true, err
}

// Names returns every registered agent name in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SortedNames returns every registered agent name in lexical order, used
// by diagnostics/listing commands where determinism matters more than
// registration history.
func (r *Registry) SortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}
