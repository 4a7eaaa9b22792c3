package extensions

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog/log"

	"github.com/google/magic-github-proxy/internal/core"
)

var moduleExtensions = []string{".yaml", ".yml"}

// ScopeName derives the registry key of a module from its file name.
func ScopeName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadPlugin loads and compiles the extension module at path.
// State functions of the module work on store, in a namespace named after the scope.
func LoadPlugin(path string, store core.StateStore) (core.Scope, error) {
	name := ScopeName(path)
	invalid := func(reason string, args ...any) error {
		return &core.PluginError{
			Name:   name,
			Path:   path,
			Reason: fmt.Sprintf(reason, args...),
			Err:    core.ErrInvalidPlugin,
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return core.Scope{}, &core.PluginError{
				Name:   name,
				Path:   path,
				Reason: "this plugin file does not exist",
				Err:    core.ErrPluginNotFound,
			}
		}
		return core.Scope{}, invalid("%v", err)
	}
	if info.IsDir() {
		return core.Scope{}, invalid("is a directory")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return core.Scope{}, invalid("%v", err)
	}

	var mf moduleFile
	if err := yaml.UnmarshalWithOptions(data, &mf, yaml.DisallowUnknownField()); err != nil {
		return core.Scope{}, invalid("not a valid module: %v", err)
	}
	if strings.TrimSpace(mf.IsRequestAllowed) == "" && strings.TrimSpace(mf.ResponseCallback) == "" {
		return core.Scope{}, invalid("no is_request_allowed or response_callback")
	}
	if store == nil {
		return core.Scope{}, invalid("no state store available")
	}

	module, err := compileModule(name, mf, store)
	if err != nil {
		return core.Scope{}, invalid("%v", err)
	}

	log.Debug().
		Str("scope", name).
		Str("path", path).
		Bool("matcher", module.matcher != nil).
		Bool("observer", module.callback != nil).
		Msg("loaded extension module")

	return module.Scope(mf.Description, path), nil
}

// LoadPlugins loads every module in dir. The first module failing to load aborts.
func LoadPlugins(dir string, store core.StateStore) ([]core.Scope, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: plugins directory '%s' does not exist", core.ErrPluginNotFound, dir)
		}
		return nil, fmt.Errorf("reading plugins directory '%s': %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !isModuleFile(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	scopes := make([]core.Scope, 0, len(paths))
	for _, path := range paths {
		scope, err := LoadPlugin(path, store)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, scope)
	}

	log.Info().
		Str("dir", dir).
		Int("count", len(scopes)).
		Msg("loaded extension modules")

	return scopes, nil
}

func isModuleFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range moduleExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
