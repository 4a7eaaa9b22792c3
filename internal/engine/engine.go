package engine

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/google/magic-github-proxy/internal/core"
	"github.com/google/magic-github-proxy/internal/metrics"
)

// Engine decides whether a magic token grants a request.
type Engine struct {
	registry *Registry
	metrics  *metrics.Metrics
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates a new Engine on top of the given registry.
func New(registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

// ValidateRequest reports whether the scopes or allowed entries of a token grant method and path.
//
// Static scopes grant on the first matching permission. The first scope backed by an
// extension with a request matcher decides on its own, later scopes are not consulted.
// Unknown scope names and malformed allowed entries grant nothing.
func (e *Engine) ValidateRequest(ctx context.Context, method, path string, scopes, allowed []string) bool {
	return e.evaluate(ctx, method, path, scopes, allowed, nil)
}

// Trace evaluates like ValidateRequest and records every scope and allowed entry considered.
func (e *Engine) Trace(ctx context.Context, method, path string, scopes, allowed []string) core.EvaluationTrace {
	trace := core.EvaluationTrace{
		Method: method,
		Path:   core.NormalizePath(path),
	}
	trace.FinalDecision = e.evaluate(ctx, method, path, scopes, allowed, &trace)
	return trace
}

func (e *Engine) evaluate(
	ctx context.Context,
	method, path string,
	scopes, allowed []string,
	trace *core.EvaluationTrace,
) bool {
	path = core.NormalizePath(path)
	logger := log.Ctx(ctx)

	record := func(step core.TraceStep) {
		if trace == nil {
			return
		}
		trace.Steps = append(trace.Steps, step)
		if step.Matched {
			trace.DecidedBy = step.Name
		}
	}

	for _, name := range scopes {
		scope, ok := e.registry.Get(name)
		if !ok {
			record(core.TraceStep{
				Source: "scope",
				Name:   name,
				Reason: "scope is not configured on the proxy",
			})
			continue
		}

		switch scope.Kind {
		case core.StaticScope:
			for _, p := range scope.Permissions {
				if p.IsRequestAllowed(method, path) {
					record(core.TraceStep{
						Source:  "scope",
						Name:    name,
						Kind:    scope.Kind.String(),
						Matched: true,
						Reason:  "matched " + p.String(),
					})
					return true
				}
			}
			record(core.TraceStep{
				Source: "scope",
				Name:   name,
				Kind:   scope.Kind.String(),
				Reason: "no permission matched",
			})

		case core.ExtensionScope:
			if scope.Matcher == nil {
				record(core.TraceStep{
					Source: "scope",
					Name:   name,
					Kind:   scope.Kind.String(),
					Reason: "extension has no request matcher",
				})
				continue
			}

			allowedByExtension, err := scope.Matcher.IsRequestAllowed(ctx, method, path)
			if err != nil {
				logger.Warn().Err(err).Str("scope", name).Msg("extension failed to evaluate request, denying")
				allowedByExtension = false
			}

			step := core.TraceStep{
				Source:  "scope",
				Name:    name,
				Kind:    scope.Kind.String(),
				Matched: allowedByExtension,
				Reason:  "decided by extension",
			}
			if err != nil {
				step.Reason = "extension failed: " + err.Error()
			}
			record(step)
			if trace != nil && !allowedByExtension {
				trace.DecidedBy = name
			}
			return allowedByExtension
		}
	}

	for _, entry := range allowed {
		p, err := core.ParsePermission(entry)
		if err != nil {
			logger.Debug().Err(err).Str("allowed", entry).Msg("ignoring malformed allowed entry")
			record(core.TraceStep{
				Source: "allowed",
				Name:   entry,
				Reason: "malformed entry: " + err.Error(),
			})
			continue
		}
		if p.IsRequestAllowed(method, path) {
			record(core.TraceStep{
				Source:  "allowed",
				Name:    entry,
				Matched: true,
			})
			return true
		}
		record(core.TraceStep{
			Source: "allowed",
			Name:   entry,
			Reason: "method or path did not match",
		})
	}

	return false
}
