package engine

import (
	"fmt"
	"slices"
	"sort"

	"github.com/google/magic-github-proxy/internal/core"
)

// Registry maps scope names to scopes. It is built once and read-only afterwards.
type Registry struct {
	scopes map[string]core.Scope
	names  []string
}

// NewRegistry creates a registry from the given scopes. Names must be unique.
func NewRegistry(scopes ...core.Scope) (*Registry, error) {
	r := &Registry{
		scopes: make(map[string]core.Scope, len(scopes)),
		names:  make([]string, 0, len(scopes)),
	}
	for _, s := range scopes {
		if s.Name == "" {
			return nil, fmt.Errorf("scope without a name")
		}
		if existing, ok := r.scopes[s.Name]; ok {
			return nil, fmt.Errorf("scope '%s' (%s) is defined more than once, previously as %s scope",
				s.Name, s.Kind, existing.Kind)
		}
		r.scopes[s.Name] = s
		r.names = append(r.names, s.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

func (r *Registry) Get(name string) (core.Scope, bool) {
	s, ok := r.scopes[name]
	return s, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.scopes[name]
	return ok
}

// Names returns the sorted scope names.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

func (r *Registry) Len() int {
	return len(r.names)
}

// Scopes returns all scopes sorted by name.
func (r *Registry) Scopes() []core.Scope {
	result := make([]core.Scope, 0, len(r.names))
	for _, name := range r.names {
		result = append(result, r.scopes[name])
	}
	return result
}
