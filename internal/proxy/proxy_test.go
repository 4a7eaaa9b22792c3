package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/google/magic-github-proxy/internal/audit"
	"github.com/google/magic-github-proxy/internal/core"
	"github.com/google/magic-github-proxy/internal/engine"
	"github.com/google/magic-github-proxy/internal/keys"
	"github.com/google/magic-github-proxy/internal/magictoken"
	"github.com/google/magic-github-proxy/internal/service"
)

// recordingExtension allows POST /user/repos and records every observed response.
type recordingExtension struct {
	mu       sync.Mutex
	observed []core.ObservedResponse
}

func (e *recordingExtension) IsRequestAllowed(_ context.Context, method, path string) (bool, error) {
	return method == http.MethodPost && path == "/user/repos", nil
}

func (e *recordingExtension) ResponseCallback(_ context.Context, resp core.ObservedResponse) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observed = append(e.observed, resp)
	return nil
}

type fixture struct {
	codec     *magictoken.Codec
	svc       *service.MagicTokenService
	auditor   *audit.InMemoryAuditor
	extension *recordingExtension
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	paths := keys.Paths{
		PrivateKey:  filepath.Join(dir, "private.pem"),
		Certificate: filepath.Join(dir, "public.x509.cer"),
	}
	k, err := keys.LoadOrGenerate(paths, "http://localhost")
	if err != nil {
		t.Fatal(err)
	}

	ext := &recordingExtension{}
	extScope, err := core.NewExtensionScope("create_repo", ext)
	if err != nil {
		t.Fatal(err)
	}
	registry, err := engine.NewRegistry(
		core.NewStaticScope("repo:read", core.MustPermission("GET", "/repos/.*")),
		extScope,
	)
	if err != nil {
		t.Fatal(err)
	}

	codec := magictoken.New(k)
	auditor := audit.NewInMemoryAuditor(0)
	return fixture{
		codec:     codec,
		svc:       service.NewMagicTokenService(codec, nil, engine.NewManager(registry), auditor, nil),
		auditor:   auditor,
		extension: ext,
	}
}

func (f fixture) token(t *testing.T, scopes ...string) string {
	t.Helper()
	token, err := f.codec.Create("ghp_upstream", scopes, nil)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func newProxy(t *testing.T, fx fixture, cfg Config, opts ...Option) *Proxy {
	t.Helper()
	p, err := New(cfg, fx.svc, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNew_InvalidAPIRoot(t *testing.T) {
	fx := newFixture(t)
	for _, root := range []string{"", "api.github.com", "://"} {
		if _, err := New(Config{APIRoot: root}, fx.svc); err == nil {
			t.Errorf("New(%q) expected error", root)
		}
	}
}

func TestProxy_Rejections(t *testing.T) {
	fx := newFixture(t)

	called := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer upstream.Close()

	p := newProxy(t, fx, Config{APIRoot: upstream.URL})

	tests := []struct {
		name          string
		authorization string
		method, path  string
		wantStatus    int
		wantBody      string
	}{
		{"missing token", "", "GET", "/repos/a/b", http.StatusUnauthorized, "authentication required"},
		{"invalid token", "Bearer garbage", "GET", "/repos/a/b", http.StatusUnauthorized, "invalid token"},
		{"denied", "Bearer " + fx.token(t, "repo:read"), "DELETE", "/repos/a/b", http.StatusForbidden, "allowed scopes: repo:read"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.authorization != "" {
				req.Header.Set("Authorization", tc.authorization)
			}
			rec := httptest.NewRecorder()
			p.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tc.wantBody) {
				t.Errorf("body %q does not contain %q", rec.Body.String(), tc.wantBody)
			}
			if strings.Contains(rec.Body.String(), "ghp_upstream") {
				t.Errorf("body leaks the upstream credential")
			}
		})
	}

	if called {
		t.Error("rejected requests must not reach the upstream")
	}
}

func TestProxy_Forward(t *testing.T) {
	fx := newFixture(t)

	var got *http.Request
	var gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)

		w.Header().Set("X-RateLimit-Remaining", "42")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer upstream.Close()

	p := newProxy(t, fx, Config{
		APIRoot:      upstream.URL + "/api/v3",
		CleanHeaders: []string{"x-internal"},
		CleanQueries: []string{"access_token"},
	})

	req := httptest.NewRequest(http.MethodGet, "/repos/octocat/hello?per_page=10&access_token=leak", strings.NewReader("payload"))
	req.Header.Set("Authorization", "Bearer "+fx.token(t, "repo:read"))
	req.Header.Set("X-Internal", "secret")
	req.Header.Set("X-Custom", "keep")
	req.Header.Set("Connection", "X-Hop")
	req.Header.Set("X-Hop", "drop")
	req.Header.Set("User-Agent", "test-client")
	rec := httptest.NewRecorder()

	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if got == nil {
		t.Fatal("upstream was not called")
	}

	if got.URL.Path != "/api/v3/repos/octocat/hello" {
		t.Errorf("upstream path = %q", got.URL.Path)
	}
	if diff := cmp.Diff(map[string][]string{"per_page": {"10"}}, map[string][]string(got.URL.Query())); diff != "" {
		t.Errorf("upstream query mismatch (-want +got):\n%s", diff)
	}
	if gotBody != "payload" {
		t.Errorf("upstream body = %q", gotBody)
	}

	wantHeaders := map[string]string{
		"Authorization": "Bearer ghp_upstream",
		"X-Custom":      "keep",
		"X-Internal":    "",
		"X-Hop":         "",
		"User-Agent":    "test-client",
	}
	for name, want := range wantHeaders {
		if v := got.Header.Get(name); v != want {
			t.Errorf("upstream header %s = %q, want %q", name, v, want)
		}
	}

	if v := rec.Header().Get(MarkerHeader); v != MarkerValue {
		t.Errorf("%s = %q", MarkerHeader, v)
	}
	if v := rec.Header().Get("X-RateLimit-Remaining"); v != "42" {
		t.Errorf("upstream header not relayed, got %q", v)
	}
	if v := rec.Header().Get("Content-Length"); v != "" {
		t.Errorf("Content-Length should be stripped, got %q", v)
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Errorf("body = %q", rec.Body.String())
	}

	entries := fx.auditor.GetRecent(1)
	if len(entries) != 1 || !entries[0].Success || entries[0].UpstreamStatus != http.StatusCreated {
		t.Errorf("unexpected audit entries %+v", entries)
	}
}

func TestProxy_DefaultUserAgent(t *testing.T) {
	fx := newFixture(t)

	var userAgent string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
	}))
	defer upstream.Close()

	p := newProxy(t, fx, Config{APIRoot: upstream.URL})
	req := httptest.NewRequest(http.MethodGet, "/repos/a/b", nil)
	req.Header.Set("Authorization", "Bearer "+fx.token(t, "repo:read"))
	req.Header.Del("User-Agent")
	p.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.HasPrefix(userAgent, "magicproxy/") {
		t.Errorf("User-Agent = %q", userAgent)
	}
}

func TestProxy_UpstreamUnavailable(t *testing.T) {
	fx := newFixture(t)

	upstream := httptest.NewServer(http.NotFoundHandler())
	root := upstream.URL
	upstream.Close()

	p := newProxy(t, fx, Config{APIRoot: root})
	req := httptest.NewRequest(http.MethodGet, "/repos/a/b", nil)
	req.Header.Set("Authorization", "Bearer "+fx.token(t, "repo:read"))
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	entries := fx.auditor.GetRecent(1)
	if len(entries) != 1 || entries[0].Success || entries[0].Error == "" {
		t.Errorf("expected a failed audit entry, got %+v", entries)
	}
}

func TestProxy_ResponseCallback(t *testing.T) {
	fx := newFixture(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"full_name":"octocat/new"}`)
	}))
	defer upstream.Close()

	token := fx.token(t, "create_repo")

	t.Run("observed", func(t *testing.T) {
		p := newProxy(t, fx, Config{APIRoot: upstream.URL})
		req := httptest.NewRequest(http.MethodPost, "/user/repos", strings.NewReader(`{"name":"new"}`))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
		}
		if len(fx.extension.observed) != 1 {
			t.Fatalf("expected one observed response, got %d", len(fx.extension.observed))
		}
		obs := fx.extension.observed[0]
		if obs.Method != http.MethodPost || obs.Path != "/user/repos" || obs.StatusCode != http.StatusCreated {
			t.Errorf("unexpected observed response %+v", obs)
		}
		if string(obs.Content) != `{"full_name":"octocat/new"}` {
			t.Errorf("observed content = %q", obs.Content)
		}
	})

	t.Run("truncated bodies are not observed", func(t *testing.T) {
		fx.extension.observed = nil
		p := newProxy(t, fx, Config{APIRoot: upstream.URL}, WithMaxObservedBody(4))
		req := httptest.NewRequest(http.MethodPost, "/user/repos", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, req)

		if rec.Body.String() != `{"full_name":"octocat/new"}` {
			t.Errorf("body must be relayed in full, got %q", rec.Body.String())
		}
		if len(fx.extension.observed) != 0 {
			t.Errorf("expected no observed responses, got %d", len(fx.extension.observed))
		}
	})
}

func TestBoundedBuffer(t *testing.T) {
	b := &boundedBuffer{limit: 5}
	for _, chunk := range []string{"ab", "cd", "ef", "gh"} {
		n, err := b.Write([]byte(chunk))
		if err != nil || n != len(chunk) {
			t.Fatalf("Write(%q) = %d, %v", chunk, n, err)
		}
	}
	if string(b.buf) != "abcde" || !b.truncated {
		t.Errorf("buf = %q, truncated = %v", b.buf, b.truncated)
	}
}

func TestCleanQuery(t *testing.T) {
	p := &Proxy{cleanQueries: []string{"access_token"}}
	tests := map[string]string{
		"":                            "",
		"a=1":                         "a=1",
		"access_token=x":              "",
		"b=2&access_token=x&a=1":      "a=1&b=2",
		"access_token=x&access_token": "",
	}
	for in, want := range tests {
		if got := p.cleanQuery(in); got != want {
			t.Errorf("cleanQuery(%q) = %q, want %q", in, got, want)
		}
	}
}
