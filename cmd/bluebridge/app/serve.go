package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluebridge-dev/bluebridge/pkg/api"
	v1 "github.com/bluebridge-dev/bluebridge/pkg/api/v1"
	"github.com/bluebridge-dev/bluebridge/pkg/bluesky"
	"github.com/bluebridge-dev/bluebridge/pkg/cache"
	"github.com/bluebridge-dev/bluebridge/pkg/config"
	"github.com/bluebridge-dev/bluebridge/pkg/idmap"
	"github.com/bluebridge-dev/bluebridge/pkg/logger"
	"github.com/bluebridge-dev/bluebridge/pkg/oauth"
	"github.com/bluebridge-dev/bluebridge/pkg/ratelimit"
	"github.com/bluebridge-dev/bluebridge/pkg/snowflake"
	"github.com/bluebridge-dev/bluebridge/pkg/telemetry"
	"github.com/bluebridge-dev/bluebridge/pkg/translate"
	"github.com/bluebridge-dev/bluebridge/pkg/versions"
)

// newServeCmd creates the serve command, the long-running gateway process.
func newServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		Long: `Start the gateway and serve the Mastodon client API until interrupted.
All configuration comes from BLUEBRIDGE_* environment variables; flags
override the environment.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen-addr", "", "Address to bind the HTTP server (host:port)")

	return cmd
}

func runServe(parent context.Context, cfg *config.Config) error {
	logger.Initialize(cfg.LogLevel, cfg.UnstructuredLogs)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Endpoint:                    cfg.OTLPEndpoint,
		ServiceName:                 "bluebridge",
		ServiceVersion:              versions.GetVersionInfo().Version,
		TracingEnabled:              cfg.TracingEnabled,
		MetricsEnabled:              cfg.MetricsEnabled,
		SamplingRate:                cfg.SamplingRate,
		Insecure:                    cfg.OTLPInsecure,
		EnablePrometheusMetricsPath: cfg.PrometheusMetrics,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("telemetry shutdown", "error", err)
		}
	}()

	ids := idmap.New(store)
	upstream := bluesky.NewFactory(cfg.PDSHost)
	tokens := oauth.New(store, upstream)

	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.New(store, ratelimit.Config{
			Window: cfg.RateLimitWindow,
			Capacity: map[string]int{
				ratelimit.ScopeIP:   cfg.RateLimitAnon,
				ratelimit.ScopeUser: cfg.RateLimitUser,
			},
		})
	}

	router := api.NewRouter(api.Config{
		Deps: v1.Deps{
			OAuth:           tokens,
			IDs:             ids,
			Translate:       translate.New(ids),
			Store:           store,
			Snowflakes:      snowflake.New(cfg.WorkerID),
			Domain:          cfg.Domain,
			SoftwareVersion: versions.GetVersionInfo().Version,
		},
		Limiter:   limiter,
		Tokens:    tokens,
		Telemetry: provider,
	})

	logger.Infow("gateway configured",
		"pds_host", cfg.PDSHost,
		"domain", cfg.Domain,
		"redis", cfg.RedisAddr != "",
		"rate_limit", cfg.RateLimitEnabled,
	)
	return api.Serve(ctx, cfg.ListenAddr, router)
}

// newStore selects the cache backend: Redis when configured, otherwise the
// process-local map. A single instance works fine on the local store; running
// more than one requires Redis so sessions and ID mappings are shared.
func newStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	if cfg.RedisAddr == "" {
		return cache.NewMemory(), nil
	}
	store, err := cache.NewRedis(ctx, cache.RedisConfig{
		Addr:      cfg.RedisAddr,
		Username:  cfg.RedisUsername,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		KeyPrefix: cfg.RedisPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return store, nil
}
