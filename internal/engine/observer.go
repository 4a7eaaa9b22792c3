package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/google/magic-github-proxy/internal/core"
)

// ObserverFor returns the first scope in scopes that has a response observer.
func (e *Engine) ObserverFor(scopes []string) (core.Scope, bool) {
	for _, name := range scopes {
		scope, ok := e.registry.Get(name)
		if ok && scope.Observer != nil {
			return scope, true
		}
	}
	return core.Scope{}, false
}

// ResponseCallback hands a completed response to the observer of the first scope that has one.
// Observer failures are logged and counted, never returned: the response has already been sent.
func (e *Engine) ResponseCallback(ctx context.Context, resp core.ObservedResponse, scopes []string) {
	scope, ok := e.ObserverFor(scopes)
	if !ok {
		return
	}

	logger := log.Ctx(ctx).With().Str("scope", scope.Name).Logger()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("response callback panicked: %v", r)
			}
		}()
		return scope.Observer.ResponseCallback(ctx, resp)
	}()
	if err != nil {
		logger.Error().Err(err).
			Str("method", resp.Method).
			Str("path", resp.Path).
			Int("status", resp.StatusCode).
			Msg("response callback failed")
		e.metrics.ResponseCallbackFailed(scope.Name)
	}
}
