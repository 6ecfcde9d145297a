package actions

import (
	"fmt"
	"slices"
	"sync"

	"github.com/confighub/hero-scout/pkg/heroku"
)

// Registry holds all available executors
type Registry struct {
	mu        sync.RWMutex
	executors map[ActionType]Executor
}

// NewRegistry creates a new executor registry
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[ActionType]Executor),
	}
}

// Register adds an executor to the registry
func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[e.Type()] = e
}

// Get returns an executor by type
func (r *Registry) Get(t ActionType) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[t]
	return e, ok
}

// ExecutorFor returns the executor for a request after validating it
func (r *Registry) ExecutorFor(req *Request) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executors[req.Type]
	if !ok {
		return nil, fmt.Errorf("%w: no executor registered for %q", ErrInvalidRequest, req.Type)
	}
	if err := e.Validate(req); err != nil {
		return nil, err
	}
	return e, nil
}

// Types returns all registered action types, sorted
func (r *Registry) Types() []ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]ActionType, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// DefaultRegistry creates a registry with all standard executors
func DefaultRegistry(api heroku.API) *Registry {
	r := NewRegistry()
	r.Register(NewCreateAppExecutor(api))
	r.Register(NewDeleteAppExecutor(api))
	r.Register(NewCreateDynoExecutor(api))
	r.Register(NewRestartExecutor(api))
	r.Register(NewStopExecutor(api))
	r.Register(NewScaleExecutor(api))
	return r
}
