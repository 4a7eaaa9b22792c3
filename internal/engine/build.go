package engine

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/google/magic-github-proxy/internal/core"
	"github.com/google/magic-github-proxy/internal/extensions"
	"github.com/google/magic-github-proxy/internal/validation"
)

// BuildRegistry creates the registry from the validated static scopes and the
// extension modules in pluginsDir, if set.
func BuildRegistry(static []core.Scope, pluginsDir string, store core.StateStore) (*Registry, error) {
	var modules []core.Scope
	if pluginsDir != "" {
		var err error
		if modules, err = extensions.LoadPlugins(pluginsDir, store); err != nil {
			return nil, fmt.Errorf("loading extension modules: %w", err)
		}
	}

	scopes, err := validation.MergeScopes(static, modules)
	if err != nil {
		return nil, err
	}

	registry, err := NewRegistry(scopes...)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("static", len(static)).
		Int("extensions", len(modules)).
		Msg("scope registry built")

	return registry, nil
}
