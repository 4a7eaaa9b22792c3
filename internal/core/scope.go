package core

import (
	"context"
	"net/http"
)

// ScopeKind tells how a Scope decides on requests.
type ScopeKind int

const (
	// StaticScope is a fixed list of permissions from the configuration.
	StaticScope ScopeKind = iota
	// ExtensionScope delegates to an extension module.
	ExtensionScope
)

func (k ScopeKind) String() string {
	switch k {
	case StaticScope:
		return "static"
	case ExtensionScope:
		return "extension"
	default:
		return "unknown"
	}
}

// RequestMatcher decides whether a request is allowed.
// Implementations holding mutable state must synchronize it themselves.
type RequestMatcher interface {
	IsRequestAllowed(ctx context.Context, method, path string) (bool, error)
}

// ResponseObserver is notified after a proxied response has been sent to the client.
type ResponseObserver interface {
	ResponseCallback(ctx context.Context, resp ObservedResponse) error
}

// ObservedResponse is the completed upstream response handed to a ResponseObserver.
type ObservedResponse struct {
	Method     string
	Path       string
	Content    []byte
	StatusCode int
	Headers    http.Header
}

// Scope is a named entry of the scope registry.
type Scope struct {
	Name string
	Kind ScopeKind

	// Description is shown in listings, it has no effect on decisions.
	Description string

	// Permissions is set for StaticScope.
	Permissions []Permission

	// Matcher and Observer are set for ExtensionScope, at least one of them is non-nil.
	Matcher  RequestMatcher
	Observer ResponseObserver

	// Source is the file an extension was loaded from, empty for Go extensions and static scopes.
	Source string
}

// NewStaticScope creates a scope from a fixed list of permissions.
func NewStaticScope(name string, permissions ...Permission) Scope {
	return Scope{
		Name:        name,
		Kind:        StaticScope,
		Permissions: permissions,
	}
}

// NewExtensionScope creates a scope backed by an extension.
// The extension is inspected once here: it may implement RequestMatcher,
// ResponseObserver or both.
func NewExtensionScope(name string, extension any) (Scope, error) {
	s := Scope{
		Name: name,
		Kind: ExtensionScope,
	}
	if m, ok := extension.(RequestMatcher); ok {
		s.Matcher = m
	}
	if o, ok := extension.(ResponseObserver); ok {
		s.Observer = o
	}
	if s.Matcher == nil && s.Observer == nil {
		return Scope{}, &PluginError{
			Name:   name,
			Reason: "extension implements neither a request matcher nor a response observer",
			Err:    ErrInvalidPlugin,
		}
	}
	return s, nil
}

// RequestMatcherFunc adapts a function to a RequestMatcher.
type RequestMatcherFunc func(ctx context.Context, method, path string) (bool, error)

func (f RequestMatcherFunc) IsRequestAllowed(ctx context.Context, method, path string) (bool, error) {
	return f(ctx, method, path)
}

// ResponseObserverFunc adapts a function to a ResponseObserver.
type ResponseObserverFunc func(ctx context.Context, resp ObservedResponse) error

func (f ResponseObserverFunc) ResponseCallback(ctx context.Context, resp ObservedResponse) error {
	return f(ctx, resp)
}
