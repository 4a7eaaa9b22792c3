package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is wrapped by every error caused by a malformed token creation request.
var ErrValidation = errors.New("invalid request")

var (
	ErrNotJSON          = fmt.Errorf("%w: request must be json", ErrValidation)
	ErrMissingToken     = fmt.Errorf("%w: we need a token for the API behind, in the 'token' field", ErrValidation)
	ErrConflictingGrant = fmt.Errorf("%w: allowed (spelling out the allowed requests) OR scopes (naming a scope configured on the proxy), not both", ErrValidation)
	ErrInvalidAllowed   = fmt.Errorf("%w: allowed must be a list of \"METHOD path_regex\" strings", ErrValidation)
)

// InvalidScopeError is returned when requested scopes are malformed or unknown to the proxy.
type InvalidScopeError struct {
	Invalid []string
	Valid   []string
}

func (e *InvalidScopeError) Error() string {
	if len(e.Invalid) == 0 {
		return "scopes must be a list of strings"
	}
	return fmt.Sprintf("scopes must be configured on the proxy (invalid: %s; valid: %s)",
		strings.Join(e.Invalid, " "), strings.Join(e.Valid, " "))
}

func (e *InvalidScopeError) Unwrap() error {
	return ErrValidation
}

var (
	// ErrAuthentication means the request carries no usable bearer token.
	ErrAuthentication = errors.New("authentication required")

	// ErrInvalidToken covers bad signatures, malformed tokens and expired tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrDecryption means the credential inside a validly signed token could not be decrypted.
	ErrDecryption = errors.New("cannot decrypt token")

	// ErrAccessDenied means the token does not grant the requested method and path.
	ErrAccessDenied = errors.New("access denied")
)

var (
	ErrPluginNotFound = errors.New("plugin not found")
	ErrInvalidPlugin  = errors.New("invalid plugin")
)

// PluginError describes why an extension module could not be loaded.
type PluginError struct {
	Name   string
	Path   string
	Reason string
	Err    error
}

func (e *PluginError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Err.Error())
	sb.WriteString(" ")
	sb.WriteString(e.Name)
	if e.Path != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Path)
		sb.WriteString(")")
	}
	if e.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Reason)
	}
	return sb.String()
}

func (e *PluginError) Unwrap() error {
	return e.Err
}
