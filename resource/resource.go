// Package resource implements read-only views addressed by URIs such as
// grants://pending or voting://grant/{id}.
package resource

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/hupe1980/grantmesh/core"
)

// MimeJSON is the only content type views produce.
const MimeJSON = "application/json"

// Resource is a view. URI may contain {name} placeholders, each matching one
// path segment.
type Resource interface {
	URI() string
	Name() string
	Description() string
	Read(ctx context.Context, p Params) (any, error)
}

// Params are the values bound from a matched URI.
type Params struct {
	URI   string
	Path  map[string]string
	Query url.Values
}

// Int64 parses the path variable name as a positive identifier.
func (p Params) Int64(name string) (int64, error) {
	raw, ok := p.Path[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing %s in %s", core.ErrInvalidArgument, name, p.URI)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: malformed %s %q in %s", core.ErrInvalidArgument, name, raw, p.URI)
	}
	return id, nil
}

// QueryInt parses an optional integer query parameter, returning def when absent.
func (p Params) QueryInt(name string, def int) (int, error) {
	raw := p.Query.Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed %s %q", core.ErrInvalidArgument, name, raw)
	}
	return n, nil
}

// FuncResource adapts a function to Resource.
type FuncResource struct {
	uri         string
	name        string
	description string
	fn          func(ctx context.Context, p Params) (any, error)
}

// NewFuncResource creates a view backed by fn.
func NewFuncResource(uri, name, description string, fn func(ctx context.Context, p Params) (any, error)) *FuncResource {
	return &FuncResource{uri: uri, name: name, description: description, fn: fn}
}

func (r *FuncResource) URI() string         { return r.uri }
func (r *FuncResource) Name() string        { return r.name }
func (r *FuncResource) Description() string { return r.description }

// Read invokes the backing function.
func (r *FuncResource) Read(ctx context.Context, p Params) (any, error) { return r.fn(ctx, p) }

// template is a parsed URI pattern.
type template struct {
	scheme   string
	segments []string
	vars     int
}

func parseTemplate(uri string) (template, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok || scheme == "" || rest == "" {
		return template{}, fmt.Errorf("%w: malformed resource uri %q", core.ErrInvalidArgument, uri)
	}
	t := template{scheme: scheme, segments: strings.Split(rest, "/")}
	for _, s := range t.segments {
		if isVar(s) {
			t.vars++
		}
	}
	return t, nil
}

func (t template) match(scheme string, segments []string) (map[string]string, bool) {
	if scheme != t.scheme || len(segments) != len(t.segments) {
		return nil, false
	}
	vars := map[string]string{}
	for i, s := range t.segments {
		if isVar(s) {
			if segments[i] == "" {
				return nil, false
			}
			vars[s[1:len(s)-1]] = segments[i]
			continue
		}
		if s != segments[i] {
			return nil, false
		}
	}
	return vars, true
}

func isVar(s string) bool {
	return len(s) > 2 && strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")
}

// splitURI parses a concrete URI into scheme, path segments and query.
func splitURI(raw string) (string, []string, url.Values, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", nil, nil, fmt.Errorf("%w: malformed resource uri %q", core.ErrInvalidArgument, raw)
	}
	segments := []string{u.Host}
	if p := strings.Trim(u.Path, "/"); p != "" {
		segments = append(segments, strings.Split(p, "/")...)
	}
	return u.Scheme, segments, u.Query(), nil
}
