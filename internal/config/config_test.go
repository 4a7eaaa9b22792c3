package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
)

func newViper(t *testing.T, file, content string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	if file != "" {
		path := filepath.Join(t.TempDir(), file)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			t.Fatalf("ReadInConfig() error = %v", err)
		}
	}
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newViper(t, "", ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIRoot != DefaultAPIRoot {
		t.Errorf("APIRoot = %q, want %q", cfg.APIRoot, DefaultAPIRoot)
	}
	if cfg.PrivateKeyLocation != DefaultPrivateKeyLocation ||
		cfg.PublicKeyLocation != DefaultPublicKeyLocation ||
		cfg.PublicCertificateLocation != DefaultPublicCertificateLocation {
		t.Errorf("unexpected key locations: %+v", cfg)
	}
	if cfg.PublicAccess != DefaultPublicAccess {
		t.Errorf("PublicAccess = %q", cfg.PublicAccess)
	}
	if cfg.State.Type != StateMemory || !cfg.Cache.Enabled || cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("unexpected state/cache defaults: %+v %+v", cfg.State, cfg.Cache)
	}
	if len(cfg.StaticScopes) != 0 {
		t.Errorf("expected no scopes, got %d", len(cfg.StaticScopes))
	}
}

func TestLoad_JSONFile(t *testing.T) {
	content := `{
  "api_root": "https://github.example.com/api/v3",
  "public_access": "https://proxy.example.com",
  "plugins_location": "plugins",
  "clean_headers": ["X-Forwarded-For"],
  "clean_queries": ["access_token"],
  "scopes": {
    "Repo:Status": ["POST /repos/.*/statuses/.*", {"method": "GET", "path": "/repos/.*/commits"}],
    "user": ["GET /user"]
  },
  "cache": {"ttl": "30s"}
}`
	cfg, err := Load(newViper(t, "config.json", content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIRoot != "https://github.example.com/api/v3" || cfg.PluginsLocation != "plugins" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if diff := cmp.Diff([]string{"X-Forwarded-For"}, cfg.CleanHeaders); diff != "" {
		t.Errorf("CleanHeaders mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"access_token"}, cfg.CleanQueries); diff != "" {
		t.Errorf("CleanQueries mismatch (-want +got):\n%s", diff)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("Cache.TTL = %s, want 30s", cfg.Cache.TTL)
	}

	got := map[string][]string{}
	for _, s := range cfg.StaticScopes {
		for _, p := range s.Permissions {
			got[s.Name] = append(got[s.Name], p.String())
		}
	}
	want := map[string][]string{
		"Repo:Status": {"POST /repos/.*/statuses/.*", "GET /repos/.*/commits"},
		"user":        {"GET /user"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("scopes mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	content := `
api_root: http://127.0.0.1:9000
scopes:
  read:
    - GET /
state:
  type: redis
  redis:
    addr: redis:6379
    prefix: "proxy:"
audit:
  enabled: true
  type: memory
`
	cfg, err := Load(newViper(t, "config.yaml", content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.State.Type != StateRedis || cfg.State.Redis.Addr != "redis:6379" || cfg.State.Redis.Prefix != "proxy:" {
		t.Errorf("unexpected state config: %+v", cfg.State)
	}
	if !cfg.Audit.Enabled || cfg.Audit.Type != AuditMemory {
		t.Errorf("unexpected audit config: %+v", cfg.Audit)
	}
	if len(cfg.StaticScopes) != 1 || cfg.StaticScopes[0].Name != "read" {
		t.Errorf("unexpected scopes: %+v", cfg.StaticScopes)
	}
}

func TestLoad_LegacyEnvironment(t *testing.T) {
	t.Setenv("API_ROOT", "https://ghe.example.com/api/v3")
	t.Setenv("PRIVATE_KEY_LOCATION", "/secrets/private.pem")
	t.Setenv("PUBLIC_ACCESS", "https://proxy.example.com")

	cfg, err := Load(newViper(t, "", ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIRoot != "https://ghe.example.com/api/v3" {
		t.Errorf("APIRoot = %q", cfg.APIRoot)
	}
	if cfg.PrivateKeyLocation != "/secrets/private.pem" {
		t.Errorf("PrivateKeyLocation = %q", cfg.PrivateKeyLocation)
	}
	if cfg.PublicAccess != "https://proxy.example.com" {
		t.Errorf("PublicAccess = %q", cfg.PublicAccess)
	}
}

func TestLoad_PrefixedEnvironmentWins(t *testing.T) {
	t.Setenv("API_ROOT", "https://legacy.example.com")
	t.Setenv("MAGICPROXY_API_ROOT", "https://prefixed.example.com")

	cfg, err := Load(newViper(t, "", ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIRoot != "https://prefixed.example.com" {
		t.Errorf("APIRoot = %q, want the prefixed variable", cfg.APIRoot)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"api root without scheme", "c.yaml", "api_root: api.github.com\n"},
		{"unknown state type", "c.yaml", "state:\n  type: etcd\n"},
		{"scope string without space", "c.yaml", "scopes:\n  a:\n    - GET/user\n"},
		{"scope mapping missing path", "c.json", `{"scopes": {"a": [{"method": "GET"}]}}`},
		{"scope mapping unknown key", "c.json", `{"scopes": {"a": [{"method": "GET", "path": "/", "verb": "x"}]}}`},
		{"scope invalid regex", "c.json", `{"scopes": {"a": ["GET /(x"]}}`},
		{"file audit without path", "c.yaml", "audit:\n  enabled: true\n  type: file\n  path: \"\"\n"},
		{"cache without ttl", "c.yaml", "cache:\n  enabled: true\n  ttl: 0s\n"},
		{"short admin signing key", "c.yaml", "admin:\n  signing_key: short\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(newViper(t, tc.file, tc.content)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDecodeScopes(t *testing.T) {
	got, err := DecodeScopes(map[string][]any{
		"mixed": {"GET /this", map[string]any{"method": "POST", "path": "/that"}},
	})
	if err != nil {
		t.Fatalf("DecodeScopes() error = %v", err)
	}
	want := []string{"GET /this", "POST /that"}
	var names []string
	for _, p := range got["mixed"] {
		names = append(names, p.String())
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("DecodeScopes() mismatch (-want +got):\n%s", diff)
	}
}
