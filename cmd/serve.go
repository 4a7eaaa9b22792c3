package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/google/magic-github-proxy/internal/api"
	"github.com/google/magic-github-proxy/internal/config"
	"github.com/google/magic-github-proxy/internal/core"
	"github.com/google/magic-github-proxy/internal/engine"
	"github.com/google/magic-github-proxy/internal/magictoken"
	"github.com/google/magic-github-proxy/internal/metrics"
	"github.com/google/magic-github-proxy/internal/proxy"
	"github.com/google/magic-github-proxy/internal/service"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy",
	Long: `Runs the proxy. Missing keys are generated on startup.

Sending SIGHUP re-reads the configuration file and reloads scopes and
extension modules. All other settings require a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := f.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if addr, _ := cmd.Flags().GetString("addr"); cmd.Flags().Changed("addr") {
			cfg.Addr = addr
		}

		k, err := f.LoadKeys(cfg, true)
		if err != nil {
			return fmt.Errorf("loading keys: %w", err)
		}
		log.Info().Str("kid", k.KeyID()).Msg("Loaded signing keys")

		stateStore, err := f.NewStateStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("creating state store: %w", err)
		}
		defer closeAndLog(stateStore, "state store")

		log.Info().Msg("Loading scopes and extension modules...")
		registry, err := f.BuildRegistry(cfg, stateStore)
		if err != nil {
			return fmt.Errorf("building scope registry: %w", err)
		}
		log.Info().Strs("scopes", registry.Names()).Msg("Scope registry ready")

		m := metrics.New()
		manager := engine.NewManager(registry, engine.WithMetrics(m))

		codec := magictoken.New(k)
		var decoder magictoken.Decoder = codec
		if cfg.Cache.Enabled {
			cache, err := magictoken.NewCache(codec, magictoken.CacheConfig{
				TTL:         cfg.Cache.TTL,
				MaxCost:     cfg.Cache.MaxCost,
				NumCounters: cfg.Cache.MaxCost * 10,
			})
			if err != nil {
				return fmt.Errorf("creating decode cache: %w", err)
			}
			defer cache.Close()
			decoder = cache
		}

		auditor, err := f.NewAuditor(cfg)
		if err != nil {
			return fmt.Errorf("creating auditor: %w", err)
		}
		defer closeAndLog(auditor, "auditor")

		svc := service.NewMagicTokenService(codec, decoder, manager, auditor, m)
		p, err := proxy.New(proxy.Config{
			APIRoot:      cfg.APIRoot,
			CleanHeaders: cfg.CleanHeaders,
			CleanQueries: cfg.CleanQueries,
		}, svc, proxy.WithMetrics(m))
		if err != nil {
			return fmt.Errorf("creating proxy: %w", err)
		}

		if cfg.Admin.SigningKey == "" {
			log.Debug().Msg("admin.signing_key not set, audit API disabled")
		}
		srv := api.NewServer(svc, k, p, auditor, m, cfg.APIRoot)
		server := &http.Server{
			Addr:              cfg.Addr,
			Handler:           srv.Routes([]byte(cfg.Admin.SigningKey)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serveErr := make(chan error, 1)
		go func() {
			log.Info().Str("api_root", cfg.APIRoot).Msgf("Starting server on %s...", cfg.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(signals)

	loop:
		for {
			select {
			case err, ok := <-serveErr:
				if ok {
					return fmt.Errorf("server crashed: %w", err)
				}
				break loop
			case sig := <-signals:
				if sig == syscall.SIGHUP {
					reloadRegistry(manager, stateStore)
					continue
				}
				break loop
			}
		}
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		log.Info().Msg("Server exited")
		return nil
	},
}

// reloadRegistry swaps in scopes and extension modules from the current configuration.
// On failure the running registry is kept.
func reloadRegistry(manager *engine.Manager, stateStore core.StateStore) {
	log.Info().Msg("Reloading scopes and extension modules...")

	if err := viper.ReadInConfig(); err != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundError) {
			log.Error().Err(err).Msg("Reload failed, keeping current scopes")
			return
		}
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		log.Error().Err(err).Msg("Reload failed, keeping current scopes")
		return
	}
	registry, err := f.BuildRegistry(cfg, stateStore)
	if err != nil {
		log.Error().Err(err).Msg("Reload failed, keeping current scopes")
		return
	}
	manager.Update(registry)
}

type closer interface {
	Close() error
}

func closeAndLog(c closer, name string) {
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Msgf("failed to close %s", name)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", config.DefaultAddr, "address to listen on (overrides addr from the config)")
}
