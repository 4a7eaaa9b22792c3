package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"slices"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/google/magic-github-proxy/internal/core"
	"github.com/google/magic-github-proxy/internal/validation"
)

const (
	APIRootKey                   = "api_root"
	PrivateKeyLocationKey        = "private_key_location"
	PublicKeyLocationKey         = "public_key_location"
	PublicCertificateLocationKey = "public_certificate_location"
	PublicAccessKey              = "public_access"
	PluginsLocationKey           = "plugins_location"
	CleanHeadersKey              = "clean_headers"
	CleanQueriesKey              = "clean_queries"
	AddrKey                      = "addr"
)

const (
	DefaultAPIRoot                   = "https://api.github.com"
	DefaultPrivateKeyLocation        = "keys/private.pem"
	DefaultPublicKeyLocation         = "keys/public.pem"
	DefaultPublicCertificateLocation = "keys/public.x509.cer"
	DefaultPublicAccess              = "http://localhost"
	DefaultAddr                      = ":5000"
)

const (
	StateMemory = "memory"
	StateRedis  = "redis"

	AuditFile   = "file"
	AuditMemory = "memory"
)

type Config struct {
	// APIRoot is the upstream API all proxied requests are forwarded to.
	APIRoot string `mapstructure:"api_root"`

	PrivateKeyLocation        string `mapstructure:"private_key_location"`
	PublicKeyLocation         string `mapstructure:"public_key_location"`
	PublicCertificateLocation string `mapstructure:"public_certificate_location"`

	// PublicAccess is the URL clients reach the proxy on, its hostname
	// ends up in generated certificates.
	PublicAccess string `mapstructure:"public_access"`

	// PluginsLocation is a directory of extension modules.
	PluginsLocation string `mapstructure:"plugins_location"`

	// Scopes are read from the config file only, see loadScopes.
	Scopes map[string][]core.Permission `mapstructure:"-"`

	// CleanHeaders are removed from requests before forwarding, in addition to
	// Host, Connection, Authorization and hop-by-hop headers.
	CleanHeaders []string `mapstructure:"clean_headers"`

	// CleanQueries are query parameters removed before forwarding.
	CleanQueries []string `mapstructure:"clean_queries"`

	Addr  string      `mapstructure:"addr"`
	State StateConfig `mapstructure:"state"`
	Cache CacheConfig `mapstructure:"cache"`
	Audit AuditConfig `mapstructure:"audit"`
	Admin AdminConfig `mapstructure:"admin"`

	// StaticScopes are the validated Scopes, set by Validate.
	StaticScopes []core.Scope `mapstructure:"-"`
}

type StateConfig struct {
	Type  string      `mapstructure:"type"` // "memory" or "redis"
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	Prefix   string `mapstructure:"prefix"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxCost int64         `mapstructure:"max_cost"`
}

// AuditConfig holds configuration for auditing.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Type    string `mapstructure:"type"` // "file" or "memory"
	Path    string `mapstructure:"path"`

	// MaxEntries bounds the memory auditor, zero keeps everything.
	MaxEntries int `mapstructure:"max_entries"`
}

// AdminConfig guards the audit API.
type AdminConfig struct {
	// SigningKey signs admin session tokens. The audit API is disabled without it.
	SigningKey string `mapstructure:"signing_key"`
}

// MinAdminSigningKeyLength is the minimum length of admin.signing_key.
const MinAdminSigningKeyLength = 32

// SetDefaults registers defaults and the environment variable names
// understood in addition to the prefixed ones.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(APIRootKey, DefaultAPIRoot)
	v.SetDefault(PrivateKeyLocationKey, DefaultPrivateKeyLocation)
	v.SetDefault(PublicKeyLocationKey, DefaultPublicKeyLocation)
	v.SetDefault(PublicCertificateLocationKey, DefaultPublicCertificateLocation)
	v.SetDefault(PublicAccessKey, DefaultPublicAccess)
	v.SetDefault(PluginsLocationKey, "")
	v.SetDefault(CleanHeadersKey, []string{})
	v.SetDefault(CleanQueriesKey, []string{})
	v.SetDefault(AddrKey, DefaultAddr)

	v.SetDefault("state.type", StateMemory)
	v.SetDefault("state.redis.addr", "127.0.0.1:6379")
	v.SetDefault("state.redis.db", 0)
	v.SetDefault("state.redis.password", "")
	v.SetDefault("state.redis.prefix", "")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.max_cost", 10_000)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.type", AuditFile)
	v.SetDefault("audit.path", "audit.log")
	v.SetDefault("audit.max_entries", 10_000)

	v.SetDefault("admin.signing_key", "")

	for key, legacy := range map[string]string{
		APIRootKey:                   "API_ROOT",
		PrivateKeyLocationKey:        "PRIVATE_KEY_LOCATION",
		PublicKeyLocationKey:         "PUBLIC_KEY_LOCATION",
		PublicCertificateLocationKey: "PUBLIC_CERTIFICATE_LOCATION",
		PublicAccessKey:              "PUBLIC_ACCESS",
	} {
		_ = v.BindEnv(key, "MAGICPROXY_"+legacy, legacy)
	}
}

// Load reads the configuration from v. Scopes are read from the file v was
// configured with, if any. The result is validated.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if path := v.ConfigFileUsed(); path != "" {
		scopes, err := loadScopes(path)
		if err != nil {
			return nil, err
		}
		cfg.Scopes = scopes
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// loadScopes reads the scopes section of a JSON or YAML config file.
// Viper folds map keys to lower case, scope names must keep their case.
func loadScopes(path string) (map[string][]core.Permission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var raw struct {
		Scopes map[string][]any `yaml:"scopes"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return DecodeScopes(raw.Scopes)
}

// DecodeScopes converts scope definitions whose permissions are either
// "METHOD path_regex" strings or {method, path} mappings.
func DecodeScopes(raw map[string][]any) (map[string][]core.Permission, error) {
	scopes := make(map[string][]core.Permission, len(raw))
	for name, elements := range raw {
		var permissions []core.Permission
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook:  StringToPermissionHookFunc(),
			ErrorUnused: true,
			Result:      &permissions,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create decoder for scope '%s': %w", name, err)
		}
		if err := decoder.Decode(elements); err != nil {
			return nil, fmt.Errorf("failed to decode scope '%s': %w", name, err)
		}
		scopes[name] = permissions
	}
	return scopes, nil
}

// StringToPermissionHookFunc decodes "METHOD path_regex" strings into core.Permission.
func StringToPermissionHookFunc() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(core.Permission{}) {
			return data, nil
		}
		p, err := core.ParsePermission(data.(string))
		if err != nil {
			return nil, fmt.Errorf("a scope string should be a \"METHOD path_regex\": %w", err)
		}
		return p, nil
	}
}

func (c *Config) Validate() error {
	if err := validateURL(APIRootKey, c.APIRoot); err != nil {
		return err
	}
	if err := validateURL(PublicAccessKey, c.PublicAccess); err != nil {
		return err
	}
	if c.PrivateKeyLocation == "" || c.PublicCertificateLocation == "" {
		return fmt.Errorf("%s and %s are required", PrivateKeyLocationKey, PublicCertificateLocationKey)
	}

	switch c.State.Type {
	case StateMemory:
	case StateRedis:
		if c.State.Redis.Addr == "" {
			return fmt.Errorf("state.redis.addr is required for the redis state store")
		}
	default:
		return fmt.Errorf("unknown state.type '%s' (expected %s or %s)", c.State.Type, StateMemory, StateRedis)
	}

	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive when the cache is enabled")
	}

	if c.Audit.Enabled {
		if !slices.Contains([]string{AuditFile, AuditMemory}, c.Audit.Type) {
			return fmt.Errorf("unknown audit.type '%s'", c.Audit.Type)
		}
		if c.Audit.Type == AuditFile && c.Audit.Path == "" {
			return fmt.Errorf("audit.path is required for the file auditor")
		}
	}

	if c.Admin.SigningKey != "" && len(c.Admin.SigningKey) < MinAdminSigningKeyLength {
		return fmt.Errorf("admin.signing_key must be at least %d characters", MinAdminSigningKeyLength)
	}

	scopes, err := validation.ValidateScopes(c.Scopes)
	if err != nil {
		return fmt.Errorf("validating scopes: %w", err)
	}
	c.StaticScopes = scopes

	return nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url, got '%s'", key, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must contain a host, got '%s'", key, raw)
	}
	return nil
}
