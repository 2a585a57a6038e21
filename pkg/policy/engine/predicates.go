package engine

import (
	"fmt"
	"slices"
	"sync"

	"mercator-hq/tribune/pkg/policy/ast"
	"mercator-hq/tribune/pkg/policy/domain"
)

// PredicateFunc evaluates a named custom predicate.
type PredicateFunc func(args ast.Map, ctx domain.Context) (bool, error)

// PredicateRegistry maps custom predicate names to their implementations.
// It is safe for concurrent use.
type PredicateRegistry struct {
	mu  sync.RWMutex
	fns map[string]PredicateFunc
}

// NewPredicateRegistry creates an empty registry.
func NewPredicateRegistry() *PredicateRegistry {
	return &PredicateRegistry{fns: make(map[string]PredicateFunc)}
}

// Register adds a predicate. Names must be unique.
func (r *PredicateRegistry) Register(name string, fn PredicateFunc) error {
	if name == "" {
		return fmt.Errorf("predicate name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("predicate %q: function cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fns[name]; exists {
		return fmt.Errorf("predicate %q already registered", name)
	}
	r.fns[name] = fn
	return nil
}

// Lookup returns the predicate registered under name.
func (r *PredicateRegistry) Lookup(name string) (PredicateFunc, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[name]
	return fn, ok
}

// Names returns the registered predicate names, sorted.
func (r *PredicateRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.fns))
	for name := range r.fns {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
