package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/magic-github-proxy/internal/core"
)

// ValidateScopes checks the static scope table and returns it as compiled scopes, sorted by name.
func ValidateScopes(scopes map[string][]core.Permission) ([]core.Scope, error) {
	names := make([]string, 0, len(scopes))
	for name := range scopes {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]core.Scope, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("scope with empty name")
		}
		if strings.ContainsAny(name, " \t\n") {
			return nil, fmt.Errorf("scope name '%s' must not contain whitespace", name)
		}

		permissions := scopes[name]
		compiled := make([]core.Permission, 0, len(permissions))
		for i, p := range permissions {
			if p.Method == "" || p.Path == "" {
				return nil, fmt.Errorf("permission #%d of scope '%s' needs both method and path", i, name)
			}
			c, err := core.NewPermission(p.Method, p.Path)
			if err != nil {
				return nil, fmt.Errorf("permission #%d of scope '%s': %w", i, name, err)
			}
			compiled = append(compiled, c)
		}

		result = append(result, core.NewStaticScope(name, compiled...))
	}
	return result, nil
}

// MergeScopes joins static scopes and extension scopes. A name may only be used once.
func MergeScopes(static, extensions []core.Scope) ([]core.Scope, error) {
	seen := make(map[string]core.Scope, len(static)+len(extensions))
	result := make([]core.Scope, 0, len(static)+len(extensions))

	for _, s := range append(append([]core.Scope{}, static...), extensions...) {
		if previous, exists := seen[s.Name]; exists {
			return nil, fmt.Errorf("scope name '%s' is not unique: defined as %s scope%s and as %s scope%s",
				s.Name, previous.Kind, sourceSuffix(previous), s.Kind, sourceSuffix(s))
		}
		seen[s.Name] = s
		result = append(result, s)
	}
	return result, nil
}

func sourceSuffix(s core.Scope) string {
	if s.Source == "" {
		return ""
	}
	return " (" + s.Source + ")"
}
