package tool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/grantmesh/core"
	"github.com/hupe1980/grantmesh/protocol"
)

// Registry is a name indexed set of actions.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry preloaded with tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t. Names must be unique.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("%w: action %q already registered", core.ErrInvalidArgument, t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Get looks up an action by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("action %q: %w", name, core.ErrNotFound)
	}
	return t, nil
}

// List returns the actions sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Descriptors renders the tools/list payload.
func (r *Registry) Descriptors() []protocol.ToolDescriptor {
	tools := r.List()
	out := make([]protocol.ToolDescriptor, len(tools))
	for i, t := range tools {
		out[i] = protocol.ToolDescriptor{Name: t.Name(), Description: t.Description(), InputSchema: t.Parameters()}
	}
	return out
}

// Call looks up and invokes name.
func (r *Registry) Call(toolCtx *Context, name string, args map[string]any) (any, error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return t.Call(toolCtx, args)
}
