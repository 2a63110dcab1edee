package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/clawdbot/sentinel/pkg/plan"
)

// StepResult is what an adapter reports back for one executed step.
type StepResult struct {
	Status int                    `json:"status,omitempty"`
	Output map[string]interface{} `json:"output,omitempty"`
}

// Adapter executes one step against its external system. Implementations
// live outside this module; the pipeline only needs the port.
type Adapter interface {
	Execute(ctx context.Context, step plan.Step) (*StepResult, error)
}

// AdapterFunc adapts a function to the Adapter interface.
type AdapterFunc func(ctx context.Context, step plan.Step) (*StepResult, error)

func (f AdapterFunc) Execute(ctx context.Context, step plan.Step) (*StepResult, error) {
	return f(ctx, step)
}

// Registry maps adapter kinds to implementations.
type Registry struct {
	mu       sync.RWMutex
	adapters map[plan.Adapter]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[plan.Adapter]Adapter)}
}

// Register binds an implementation to an adapter kind, replacing any
// previous binding.
func (r *Registry) Register(kind plan.Adapter, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[kind] = a
}

// Lookup returns the adapter for a kind.
func (r *Registry) Lookup(kind plan.Adapter) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("executor: no adapter registered for %q", kind)
	}
	return a, nil
}
