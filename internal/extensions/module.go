// Package extensions loads extension modules: scopes whose decisions are made by
// expressions instead of a fixed permission list.
//
// An extension module is a YAML file named after its scope:
//
//	description: allow creating one repository, then deleting only that one
//	is_request_allowed: |
//	  method == "POST" && path == "/user/repos" && !remembered("repo")
//	  || method == "DELETE" && remembered("repo") && path == "/repos/" + recall("repo")
//	response_callback: |
//	  method == "POST" && code == 201 ? remember("repo", fromJSON(content).full_name) : false
//
// is_request_allowed must evaluate to a boolean and may use method, path and vars.
// response_callback may additionally use content, code and headers. Both may read
// state with recall and remembered; only response_callback may change it with
// remember and forget.
package extensions

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"

	"github.com/google/magic-github-proxy/internal/core"
)

// moduleFile is the on-disk format of an extension module.
type moduleFile struct {
	Description      string            `yaml:"description"`
	Vars             map[string]string `yaml:"vars"`
	IsRequestAllowed string            `yaml:"is_request_allowed"`
	ResponseCallback string            `yaml:"response_callback"`
}

// Module is a compiled extension module.
type Module struct {
	name  string
	vars  map[string]string
	store core.StateStore

	matcher  *vm.Program
	callback *vm.Program
}

func compileModule(name string, mf moduleFile, store core.StateStore) (*Module, error) {
	m := &Module{
		name:  name,
		vars:  mf.Vars,
		store: store,
	}
	if m.vars == nil {
		m.vars = map[string]string{}
	}

	if mf.IsRequestAllowed != "" {
		program, err := expr.Compile(mf.IsRequestAllowed,
			expr.Env(m.matcherEnv(context.Background(), "", "")),
			expr.AsBool(),
		)
		if err != nil {
			return nil, fmt.Errorf("compiling is_request_allowed: %w", err)
		}
		m.matcher = program
	}

	if mf.ResponseCallback != "" {
		program, err := expr.Compile(mf.ResponseCallback,
			expr.Env(m.callbackEnv(context.Background(), core.ObservedResponse{})),
		)
		if err != nil {
			return nil, fmt.Errorf("compiling response_callback: %w", err)
		}
		m.callback = program
	}

	return m, nil
}

// Scope turns the module into a registry entry with the capabilities it defines.
func (m *Module) Scope(description, source string) core.Scope {
	s := core.Scope{
		Name:        m.name,
		Kind:        core.ExtensionScope,
		Description: description,
		Source:      source,
	}
	if m.matcher != nil {
		s.Matcher = core.RequestMatcherFunc(m.IsRequestAllowed)
	}
	if m.callback != nil {
		s.Observer = core.ResponseObserverFunc(m.ResponseCallback)
	}
	return s
}

func (m *Module) IsRequestAllowed(ctx context.Context, method, path string) (bool, error) {
	if m.matcher == nil {
		return false, nil
	}
	out, err := expr.Run(m.matcher, m.matcherEnv(ctx, method, path))
	if err != nil {
		return false, fmt.Errorf("evaluating is_request_allowed of %s: %w", m.name, err)
	}
	allowed, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("is_request_allowed of %s returned %T, expected bool", m.name, out)
	}
	return allowed, nil
}

func (m *Module) ResponseCallback(ctx context.Context, resp core.ObservedResponse) error {
	if m.callback == nil {
		return nil
	}
	out, err := expr.Run(m.callback, m.callbackEnv(ctx, resp))
	if err != nil {
		return fmt.Errorf("evaluating response_callback of %s: %w", m.name, err)
	}
	log.Ctx(ctx).Debug().
		Str("scope", m.name).
		Interface("result", out).
		Msg("response callback evaluated")
	return nil
}

func (m *Module) matcherEnv(ctx context.Context, method, path string) map[string]any {
	env := map[string]any{
		"method": method,
		"path":   path,
		"vars":   m.vars,
	}
	m.addReadFuncs(ctx, env)
	return env
}

func (m *Module) callbackEnv(ctx context.Context, resp core.ObservedResponse) map[string]any {
	env := map[string]any{
		"method":  resp.Method,
		"path":    resp.Path,
		"vars":    m.vars,
		"content": string(resp.Content),
		"code":    resp.StatusCode,
		"headers": flattenHeaders(resp.Headers),
	}
	m.addReadFuncs(ctx, env)
	m.addWriteFuncs(ctx, env)
	return env
}

// addReadFuncs binds the read-only state functions to the module's namespace and ctx.
func (m *Module) addReadFuncs(ctx context.Context, env map[string]any) {
	env["recall"] = func(key string) (string, error) {
		value, _, err := m.store.Get(ctx, m.name, key)
		return value, err
	}
	env["remembered"] = func(key string) (bool, error) {
		_, ok, err := m.store.Get(ctx, m.name, key)
		return ok, err
	}
}

func (m *Module) addWriteFuncs(ctx context.Context, env map[string]any) {
	env["remember"] = func(key string, value any) (bool, error) {
		if err := m.store.Set(ctx, m.name, key, stringify(value)); err != nil {
			return false, err
		}
		return true, nil
	}
	env["forget"] = func(key string) (bool, error) {
		return m.store.Delete(ctx, m.name, key)
	}
}

func flattenHeaders(h http.Header) map[string]string {
	result := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) > 0 {
			result[key] = values[0]
		}
	}
	return result
}

// stringify keeps integral JSON numbers like ids free of exponents.
func stringify(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(value)
	}
}
