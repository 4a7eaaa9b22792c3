package core

import (
	"fmt"
	"regexp"
	"strings"
)

// MethodWildcard matches any HTTP method.
const MethodWildcard = "*"

// Permission is a single (method, path pattern) pair a request is checked against.
//
// Path is a regular expression searched case-insensitively from the start of the
// request path. It does not have to consume the whole path, so "/this" also
// matches "/this/extra" and "/thisAndMore".
type Permission struct {
	Method string `json:"method" yaml:"method" mapstructure:"method"`
	Path   string `json:"path" yaml:"path" mapstructure:"path"`

	pattern *regexp.Regexp
}

// NewPermission compiles the path pattern of a permission.
func NewPermission(method, path string) (Permission, error) {
	if method == "" {
		return Permission{}, fmt.Errorf("permission for path '%s' has an empty method", path)
	}
	pattern, err := compilePathPattern(path)
	if err != nil {
		return Permission{}, fmt.Errorf("invalid path pattern '%s': %w", path, err)
	}
	return Permission{
		Method:  method,
		Path:    path,
		pattern: pattern,
	}, nil
}

// MustPermission is like NewPermission but panics on invalid input.
// It is meant for static tables and tests.
func MustPermission(method, path string) Permission {
	p, err := NewPermission(method, path)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePermission parses the "METHOD pathPattern" notation used in scope
// definitions and in the allowed list of a magic token.
func ParsePermission(s string) (Permission, error) {
	method, path, ok := strings.Cut(s, " ")
	if !ok {
		return Permission{}, fmt.Errorf("permission '%s' must be in the form \"METHOD path_regex\"", s)
	}
	return NewPermission(method, path)
}

// String returns the "METHOD pathPattern" notation of the permission.
func (p Permission) String() string {
	return p.Method + " " + p.Path
}

// IsRequestAllowed reports whether a request with the given method and path is
// covered by this permission.
func (p Permission) IsRequestAllowed(method, path string) bool {
	if p.Method != MethodWildcard && p.Method != method {
		return false
	}
	pattern := p.pattern
	if pattern == nil {
		// zero value or decoded without NewPermission
		var err error
		if pattern, err = compilePathPattern(p.Path); err != nil {
			return false
		}
	}
	return pattern.MatchString(NormalizePath(path))
}

// NormalizePath makes sure the path starts with a slash.
func NormalizePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

func compilePathPattern(path string) (*regexp.Regexp, error) {
	// anchored at the start only, the rest of the path may be anything
	return regexp.Compile(`^(?i:` + path + `)`)
}
