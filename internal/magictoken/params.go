package magictoken

import (
	"fmt"
	"slices"

	"github.com/google/magic-github-proxy/internal/core"
)

// ScopeSet is the part of the scope registry needed to validate creation requests.
type ScopeSet interface {
	Has(name string) bool
	Names() []string
}

// CreateParams is a validated token creation request.
type CreateParams struct {
	Token   string
	Scopes  []string
	Allowed []string
}

// ValidateParams checks a decoded JSON creation request.
func ValidateParams(scopes ScopeSet, params map[string]any) error {
	_, err := ParseParams(scopes, params)
	return err
}

// ParseParams validates a decoded JSON creation request and extracts its fields.
func ParseParams(scopes ScopeSet, params map[string]any) (*CreateParams, error) {
	if len(params) == 0 {
		return nil, core.ErrNotJSON
	}

	rawToken, ok := params["token"]
	if !ok {
		return nil, core.ErrMissingToken
	}
	token, ok := rawToken.(string)
	if !ok || token == "" {
		return nil, core.ErrMissingToken
	}

	rawScopes, hasScopes := params["scopes"]
	rawAllowed, hasAllowed := params["allowed"]
	if hasScopes && hasAllowed {
		return nil, core.ErrConflictingGrant
	}

	result := &CreateParams{Token: token}

	switch {
	case hasScopes:
		names, ok := stringList(rawScopes)
		if !ok {
			return nil, &core.InvalidScopeError{}
		}
		var invalid []string
		for _, name := range names {
			if !scopes.Has(name) {
				invalid = append(invalid, name)
			}
		}
		if len(invalid) > 0 {
			return nil, &core.InvalidScopeError{
				Invalid: invalid,
				Valid:   scopes.Names(),
			}
		}
		result.Scopes = names

	case hasAllowed:
		entries, ok := stringList(rawAllowed)
		if !ok {
			return nil, core.ErrInvalidAllowed
		}
		for _, entry := range entries {
			if _, err := core.ParsePermission(entry); err != nil {
				return nil, fmt.Errorf("%w: '%s': %w", core.ErrInvalidAllowed, entry, err)
			}
		}
		result.Allowed = entries
	}

	return result, nil
}

func stringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return slices.Clone(list), true
	case []any:
		result := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			result = append(result, s)
		}
		return result, true
	default:
		return nil, false
	}
}
