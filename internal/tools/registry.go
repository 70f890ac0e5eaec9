package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/repochat/repochat/pkg/types"
)

// Handler executes a tool call with validated arguments.
type Handler func(ctx context.Context, args map[string]any) (any, error)

type registration struct {
	desc    Descriptor
	handler Handler
}

// Registry maps tool names to descriptors and handlers.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registration
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registration)}
}

// Register adds a tool. Duplicate names are rejected.
func (r *Registry) Register(desc Descriptor, h Handler) error {
	if desc.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if h == nil {
		return fmt.Errorf("tool %s: handler is required", desc.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[desc.Name]; exists {
		return fmt.Errorf("tool %s already registered", desc.Name)
	}
	r.tools[desc.Name] = registration{desc: desc, handler: h}
	r.order = append(r.order, desc.Name)
	return nil
}

// List returns all descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].desc)
	}
	return out
}

// Call validates args against the tool's descriptor and runs its handler.
// The handler is never invoked on invalid arguments.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrToolNotFound, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := reg.desc.validate(args); err != nil {
		return nil, err
	}
	return reg.handler(ctx, args)
}
