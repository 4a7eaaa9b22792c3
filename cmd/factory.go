package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/google/magic-github-proxy/internal/audit"
	"github.com/google/magic-github-proxy/internal/cliconfig"
	"github.com/google/magic-github-proxy/internal/config"
	"github.com/google/magic-github-proxy/internal/core"
	"github.com/google/magic-github-proxy/internal/engine"
	"github.com/google/magic-github-proxy/internal/keys"
	"github.com/google/magic-github-proxy/internal/magictoken"
	"github.com/google/magic-github-proxy/internal/service"
	"github.com/google/magic-github-proxy/internal/store"
	"github.com/google/magic-github-proxy/pkg/client"
)

type Factory struct {
	// ServerAddr is the address of the proxy to connect to.
	ServerAddr string
}

func NewFactory() *Factory {
	return &Factory{}
}

// Remote reports whether commands should talk to a running proxy.
func (f *Factory) Remote() bool {
	return f.serverAddr() != ""
}

func (f *Factory) serverAddr() string {
	if f.ServerAddr != "" { // prio 1: command-line flag
		return f.ServerAddr
	}
	return viper.GetString(ServerAddrKey) // prio 2: config/env
}

// GetClient returns a client for remote operations. The admin session token is
// taken from MAGICPROXY_ADMIN_TOKEN, falling back to a session saved with
// `audit session --save`.
func (f *Factory) GetClient() (*client.Client, error) {
	server := f.serverAddr()
	if server == "" {
		return nil, fmt.Errorf("server address not configured (use --server or set MAGICPROXY_SERVER)")
	}

	token := viper.GetString(AdminTokenKey)
	if token == "" {
		cliCfg, err := cliconfig.Load()
		if err != nil {
			log.Debug().Err(err).Msg("could not load saved credentials")
		} else if cred, err := cliCfg.GetCredential(server); err == nil {
			token = cred.Token
		}
	}
	return client.New(server, client.WithAuthToken(token))
}

func (f *Factory) bindServerFlag(flags *pflag.FlagSet) {
	flags.StringVar(&f.ServerAddr, "server", "",
		"Address of a running proxy, commands that support it talk to the server instead of using local keys")
	_ = viper.BindPFlag(ServerAddrKey, flags.Lookup("server"))
}

func (f *Factory) LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadKeys loads the key pair and certificate. With generate, missing files are created.
func (f *Factory) LoadKeys(cfg *config.Config, generate bool) (*keys.Keys, error) {
	paths := keys.Paths{
		PrivateKey:  cfg.PrivateKeyLocation,
		PublicKey:   cfg.PublicKeyLocation,
		Certificate: cfg.PublicCertificateLocation,
	}
	if generate {
		return keys.LoadOrGenerate(paths, cfg.PublicAccess)
	}
	return keys.Load(paths.PrivateKey, paths.Certificate)
}

// NewStateStore creates the store backing extension state.
func (f *Factory) NewStateStore(ctx context.Context, cfg *config.Config) (core.StateStore, error) {
	switch cfg.State.Type {
	case config.StateRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.State.Redis.Addr,
			DB:       cfg.State.Redis.DB,
			Password: cfg.State.Redis.Password,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.State.Redis.Addr, err)
		}
		log.Debug().Str("addr", cfg.State.Redis.Addr).Int("db", cfg.State.Redis.DB).Msg("using redis state store")
		redisStore, err := store.NewRedisStateStore(rdb, cfg.State.Redis.Prefix)
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		return redisStore, nil
	default:
		return store.NewInMemoryStateStore(), nil
	}
}

// BuildRegistry combines the configured scopes with the extension modules.
func (f *Factory) BuildRegistry(cfg *config.Config, stateStore core.StateStore) (*engine.Registry, error) {
	return engine.BuildRegistry(cfg.StaticScopes, cfg.PluginsLocation, stateStore)
}

func (f *Factory) NewAuditor(cfg *config.Config) (core.Auditor, error) {
	if !cfg.Audit.Enabled {
		return audit.NewNoopAuditor(), nil
	}
	switch cfg.Audit.Type {
	case config.AuditMemory:
		return audit.NewInMemoryAuditor(cfg.Audit.MaxEntries), nil
	default:
		fileAuditor, err := audit.NewFileAuditor(cfg.Audit.Path)
		if err != nil {
			return nil, err
		}
		return fileAuditor, nil
	}
}

// LocalService is a MagicTokenService built from the local configuration and keys.
type LocalService struct {
	*service.MagicTokenService

	Config *config.Config
	Keys   *keys.Keys
	Codec  *magictoken.Codec
	Engine *engine.Engine

	stateStore core.StateStore
}

func (l *LocalService) Close() error {
	return l.stateStore.Close()
}

// GetLocalService builds the service from the local configuration. Local CLI operations are not audited.
func (f *Factory) GetLocalService(ctx context.Context) (*LocalService, error) {
	cfg, err := f.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	k, err := f.LoadKeys(cfg, false)
	if err != nil {
		return nil, fmt.Errorf("loading keys: %w", err)
	}

	// extension state of the server must not be touched from the CLI
	stateStore := store.NewInMemoryStateStore()
	registry, err := f.BuildRegistry(cfg, stateStore)
	if err != nil {
		return nil, fmt.Errorf("building scope registry: %w", err)
	}

	manager := engine.NewManager(registry)
	codec := magictoken.New(k)
	return &LocalService{
		MagicTokenService: service.NewMagicTokenService(codec, nil, manager, audit.NewNoopAuditor(), nil),
		Config:            cfg,
		Keys:              k,
		Codec:             codec,
		Engine:            manager.GetEngine(),
		stateStore:        stateStore,
	}, nil
}
