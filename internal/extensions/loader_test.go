package extensions

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/google/magic-github-proxy/internal/core"
	"github.com/google/magic-github-proxy/internal/store"
)

func writeModule(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const allowAll = `
description: allows everything
is_request_allowed: "true"
`

const allowNone = `
is_request_allowed: "false"
`

func TestLoadPlugin(t *testing.T) {
	dir := t.TempDir()
	path := writeModule(t, dir, "allow_all.yaml", allowAll)

	scope, err := LoadPlugin(path, store.NewInMemoryStateStore())
	if err != nil {
		t.Fatalf("LoadPlugin() error = %v", err)
	}
	if scope.Name != "allow_all" {
		t.Errorf("Name = %q, want %q", scope.Name, "allow_all")
	}
	if scope.Kind != core.ExtensionScope || scope.Matcher == nil || scope.Observer != nil {
		t.Fatalf("unexpected scope %+v", scope)
	}
	if scope.Description != "allows everything" || scope.Source != path {
		t.Errorf("unexpected description/source: %q %q", scope.Description, scope.Source)
	}

	allowed, err := scope.Matcher.IsRequestAllowed(context.Background(), "DELETE", "/")
	if err != nil {
		t.Fatal(err)
	}
	if !allowed {
		t.Errorf("allow_all denied DELETE /")
	}
}

func TestLoadPlugin_AllowNone(t *testing.T) {
	path := writeModule(t, t.TempDir(), "allow_none.yml", allowNone)

	scope, err := LoadPlugin(path, store.NewInMemoryStateStore())
	if err != nil {
		t.Fatalf("LoadPlugin() error = %v", err)
	}
	for _, r := range [][2]string{{"DELETE", "/"}, {"GET", "/that"}} {
		allowed, err := scope.Matcher.IsRequestAllowed(context.Background(), r[0], r[1])
		if err != nil {
			t.Fatal(err)
		}
		if allowed {
			t.Errorf("allow_none allowed %s %s", r[0], r[1])
		}
	}
}

func TestLoadPlugin_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "not yaml",
			content: `
// this is not a module

function is_request_allowed(method, path) {
    return false
}
`,
		},
		{
			name:    "neither expression",
			content: "description: does nothing\n",
		},
		{
			name:    "empty file",
			content: "",
		},
		{
			name:    "unknown field",
			content: "is_request_allowed: \"true\"\nrequest_callback: \"true\"\n",
		},
		{
			name:    "invalid expression",
			content: "is_request_allowed: \"method ==\"\n",
		},
		{
			name:    "matcher is not boolean",
			content: "is_request_allowed: \"path\"\n",
		},
		{
			name:    "matcher uses callback names",
			content: "is_request_allowed: \"code == 200\"\n",
		},
		{
			name:    "matcher writes state",
			content: "is_request_allowed: '!remembered(\"used\") && remember(\"used\", \"1\")'\n",
		},
		{
			name:    "matcher forgets state",
			content: "is_request_allowed: 'forget(\"used\")'\n",
		},
		{
			name:    "callback uses unknown name",
			content: "response_callback: \"status == 200\"\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeModule(t, t.TempDir(), "module.yaml", tc.content)

			_, err := LoadPlugin(path, store.NewInMemoryStateStore())
			if !errors.Is(err, core.ErrInvalidPlugin) {
				t.Fatalf("LoadPlugin() error = %v, want ErrInvalidPlugin", err)
			}
			var pluginErr *core.PluginError
			if !errors.As(err, &pluginErr) || pluginErr.Path != path || pluginErr.Name != "module" {
				t.Errorf("expected *PluginError naming module and path, got %#v", err)
			}
		})
	}
}

func TestLoadPlugin_NotFound(t *testing.T) {
	_, err := LoadPlugin(filepath.Join(t.TempDir(), "plugin-does-not-exist.yaml"), store.NewInMemoryStateStore())
	if !errors.Is(err, core.ErrPluginNotFound) {
		t.Fatalf("LoadPlugin() error = %v, want ErrPluginNotFound", err)
	}
}

func TestLoadPlugins(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "allow_all.yaml", allowAll)
	writeModule(t, dir, "allow_none.yml", allowNone)
	writeModule(t, dir, "invalid_syntax.txt", "this is ignored")
	writeModule(t, dir, "README.md", "# modules")
	if err := os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755); err != nil {
		t.Fatal(err)
	}

	scopes, err := LoadPlugins(dir, store.NewInMemoryStateStore())
	if err != nil {
		t.Fatalf("LoadPlugins() error = %v", err)
	}

	var names []string
	for _, s := range scopes {
		names = append(names, s.Name)
	}
	if diff := cmp.Diff([]string{"allow_all", "allow_none"}, names); diff != "" {
		t.Errorf("loaded scopes mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPlugins_AbortsOnInvalidModule(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "allow_all.yaml", allowAll)
	writeModule(t, dir, "broken.yaml", "description: nothing\n")

	if _, err := LoadPlugins(dir, store.NewInMemoryStateStore()); !errors.Is(err, core.ErrInvalidPlugin) {
		t.Fatalf("LoadPlugins() error = %v, want ErrInvalidPlugin", err)
	}
}

func TestLoadPlugins_MissingDirectory(t *testing.T) {
	if _, err := LoadPlugins(filepath.Join(t.TempDir(), "missing"), store.NewInMemoryStateStore()); !errors.Is(err, core.ErrPluginNotFound) {
		t.Fatalf("LoadPlugins() error = %v, want ErrPluginNotFound", err)
	}
}

const createThenDelete = `
description: allow creating one repository, then deleting only that one
is_request_allowed: |
  method == "POST" && path == "/user/repos" && !remembered("repo")
  || method == "DELETE" && remembered("repo") && path == "/repos/" + recall("repo")
response_callback: |
  method == "POST" && code == 201 ? remember("repo", fromJSON(content).full_name) : false
`

func TestModule_NarrowingGrant(t *testing.T) {
	ctx := context.Background()
	path := writeModule(t, t.TempDir(), "repo_lifecycle.yaml", createThenDelete)
	state := store.NewInMemoryStateStore()

	scope, err := LoadPlugin(path, state)
	if err != nil {
		t.Fatalf("LoadPlugin() error = %v", err)
	}
	if scope.Matcher == nil || scope.Observer == nil {
		t.Fatalf("expected matcher and observer, got %+v", scope)
	}

	check := func(method, path string, want bool) {
		t.Helper()
		got, err := scope.Matcher.IsRequestAllowed(ctx, method, path)
		if err != nil {
			t.Fatalf("IsRequestAllowed(%s %s) error = %v", method, path, err)
		}
		if got != want {
			t.Errorf("IsRequestAllowed(%s %s) = %v, want %v", method, path, got, want)
		}
	}

	check("POST", "/user/repos", true)
	check("DELETE", "/repos/octocat/hello", false)

	err = scope.Observer.ResponseCallback(ctx, core.ObservedResponse{
		Method:     "POST",
		Path:       "/user/repos",
		Content:    []byte(`{"id": 1296269, "full_name": "octocat/hello"}`),
		StatusCode: http.StatusCreated,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
	})
	if err != nil {
		t.Fatalf("ResponseCallback() error = %v", err)
	}

	check("POST", "/user/repos", false)
	check("DELETE", "/repos/octocat/hello", true)
	check("DELETE", "/repos/octocat/other", false)

	value, ok, err := state.Get(ctx, "repo_lifecycle", "repo")
	if err != nil || !ok || value != "octocat/hello" {
		t.Errorf("state = %q, %v, %v, want octocat/hello in namespace repo_lifecycle", value, ok, err)
	}
}

func TestModule_CallbackError(t *testing.T) {
	path := writeModule(t, t.TempDir(), "parse.yaml", "response_callback: \"remember('id', fromJSON(content).id)\"\n")
	scope, err := LoadPlugin(path, store.NewInMemoryStateStore())
	if err != nil {
		t.Fatalf("LoadPlugin() error = %v", err)
	}
	if scope.Matcher != nil {
		t.Errorf("observer-only module must not have a matcher")
	}

	err = scope.Observer.ResponseCallback(context.Background(), core.ObservedResponse{
		Method:     "GET",
		Path:       "/",
		Content:    []byte("not json"),
		StatusCode: http.StatusOK,
	})
	if err == nil {
		t.Fatalf("expected error for non-json content")
	}
}

func TestModule_VarsAndNumbers(t *testing.T) {
	ctx := context.Background()
	content := `
vars:
  domain: example.com
is_request_allowed: |
  method == "POST" && path == "/v2/domains/" + vars.domain + "/records"
  || method == "DELETE" && remembered("record") && path == "/v2/domains/" + vars.domain + "/records/" + recall("record")
response_callback: |
  remember("record", fromJSON(content).domain_record.id)
`
	state := store.NewInMemoryStateStore()
	scope, err := LoadPlugin(writeModule(t, t.TempDir(), "dns.yaml", content), state)
	if err != nil {
		t.Fatalf("LoadPlugin() error = %v", err)
	}

	if err := scope.Observer.ResponseCallback(ctx, core.ObservedResponse{
		Method:     "POST",
		Path:       "/v2/domains/example.com/records",
		Content:    []byte(`{"domain_record": {"id": 28448433}}`),
		StatusCode: http.StatusCreated,
	}); err != nil {
		t.Fatalf("ResponseCallback() error = %v", err)
	}

	allowed, err := scope.Matcher.IsRequestAllowed(ctx, "DELETE", "/v2/domains/example.com/records/28448433")
	if err != nil {
		t.Fatal(err)
	}
	if !allowed {
		t.Errorf("expected deletion of the recorded id to be allowed")
	}
}

func TestScopeName(t *testing.T) {
	tests := map[string]string{
		"plugins/allow_all.yaml": "allow_all",
		"allow_none.yml":         "allow_none",
		"/abs/repo.create.yaml":  "repo.create",
	}
	for in, want := range tests {
		if got := ScopeName(in); got != want {
			t.Errorf("ScopeName(%q) = %q, want %q", in, got, want)
		}
	}
}
