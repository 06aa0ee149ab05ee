package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hupe1980/grantmesh/core"
	"github.com/hupe1980/grantmesh/protocol"
)

type entry struct {
	res Resource
	tpl template
}

// Registry resolves URIs to views. Literal patterns win over templated ones,
// so grants://pending is never captured by grants://{id}.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

// NewRegistry creates a registry preloaded with resources.
func NewRegistry(resources ...Resource) (*Registry, error) {
	r := &Registry{}
	for _, res := range resources {
		if err := r.Register(res); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds res. Patterns must be unique.
func (r *Registry) Register(res Resource) error {
	tpl, err := parseTemplate(res.URI())
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.res.URI() == res.URI() {
			return fmt.Errorf("%w: view %q already registered", core.ErrInvalidArgument, res.URI())
		}
	}
	r.entries = append(r.entries, entry{res: res, tpl: tpl})
	return nil
}

// Match finds the view for uri and binds its parameters.
func (r *Registry) Match(uri string) (Resource, Params, error) {
	scheme, segments, query, err := splitURI(uri)
	if err != nil {
		return nil, Params{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best     Resource
		bestVars map[string]string
		bestRank = -1
	)
	for _, e := range r.entries {
		vars, ok := e.tpl.match(scheme, segments)
		if !ok {
			continue
		}
		rank := len(e.tpl.segments) - e.tpl.vars
		if rank > bestRank {
			best, bestVars, bestRank = e.res, vars, rank
		}
	}
	if best == nil {
		return nil, Params{}, fmt.Errorf("view %q: %w", uri, core.ErrNotFound)
	}
	return best, Params{URI: uri, Path: bestVars, Query: query}, nil
}

// Read resolves uri and renders the view as JSON.
func (r *Registry) Read(ctx context.Context, uri string) (protocol.ReadResourceResult, error) {
	res, params, err := r.Match(uri)
	if err != nil {
		return protocol.ReadResourceResult{}, err
	}
	v, err := res.Read(ctx, params)
	if err != nil {
		return protocol.ReadResourceResult{}, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return protocol.ReadResourceResult{}, fmt.Errorf("render %s: %w", uri, err)
	}
	return protocol.ReadResourceResult{URI: uri, MimeType: MimeJSON, Contents: b}, nil
}

// Descriptors renders the resources/list payload in registration order.
func (r *Registry) Descriptors() []protocol.ResourceDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.ResourceDescriptor, len(r.entries))
	for i, e := range r.entries {
		out[i] = protocol.ResourceDescriptor{
			URI:         e.res.URI(),
			Name:        e.res.Name(),
			Description: e.res.Description(),
			MimeType:    MimeJSON,
			Template:    e.tpl.vars > 0,
		}
	}
	return out
}
