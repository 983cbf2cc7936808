package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chainLens/internal/blocktime"
	"chainLens/internal/chain"
	"chainLens/internal/config"
	"chainLens/internal/currency"
	"chainLens/internal/metrics"
	"chainLens/internal/networks"
	"chainLens/internal/pgcache"
	"chainLens/internal/pricing"
	"chainLens/internal/quote"
	"chainLens/internal/resource"
)

// app holds the components shared by every command.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	registry  *networks.Registry
	pool      *chain.Pool
	cache     *pgcache.Cache
	resolver  *blocktime.Resolver
	oracle    *pricing.Oracle
	converter *currency.Converter
	quotes    *quote.Service

	metricsSrv *http.Server
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	registry, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}

	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)
	policy := resource.Policy{MaxEntries: cfg.CacheMaxEntries, IdleTTL: cfg.CacheIdleTTL}

	pool := chain.NewPool(registry, chain.PoolConfig{
		Resolver: chain.TemplateResolver{
			Template:  cfg.RPCTemplate,
			APIKey:    cfg.RPCKey,
			Overrides: cfg.RPCOverrides(registry.Names()),
		},
		Policy: policy,
		Client: chain.ClientOptions{
			RateLimit:    cfg.RPCRateLimit,
			Burst:        cfg.RPCBurst,
			MaxRetries:   cfg.RPCMaxRetries,
			RetryBackoff: cfg.RPCRetryBackoff,
		},
		Logger:  logger,
		Metrics: m,
	})

	var cache *pgcache.Cache
	if cfg.DBEnabled {
		cache = pgcache.New(registry, pgcache.Config{
			Credentials: pgcache.NewViperCredentials(cfg.Viper()),
			Policy:      policy,
			Logger:      logger,
			Metrics:     m,
		})
	}

	resolver := blocktime.New(logger)
	oracle := pricing.New(registry, pool, logger, m)
	converter := currency.NewConverter()

	a := &app{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		pool:      pool,
		cache:     cache,
		resolver:  resolver,
		oracle:    oracle,
		converter: converter,
		quotes: quote.NewService(quote.Config{
			Networks:  registry,
			Providers: pool,
			Resolver:  resolver,
			Prices:    oracle,
			Converter: converter,
			Cache:     cache,
			Logger:    logger,
		}),
	}

	if cfg.MetricsAddr != "" {
		a.serveMetrics(promRegistry)
	}
	return a, nil
}

func loadRegistry(cfg config.Config) (*networks.Registry, error) {
	var (
		registry *networks.Registry
		err      error
	)
	if cfg.NetworksFile != "" {
		registry, err = networks.LoadFile(cfg.NetworksFile)
	} else {
		registry, err = networks.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("load network registry: %w", err)
	}
	if cfg.StrictRegistry {
		if err := registry.Validate(); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (a *app) serveMetrics(gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(gatherer))
	a.metricsSrv = &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("metrics server start", zap.String("addr", a.cfg.MetricsAddr))
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// reader leases the node of network for the block commands.
func (a *app) reader(ctx context.Context, network string) (chain.Reader, func(), error) {
	return a.pool.Reader(ctx, network, chain.Options{})
}

func (a *app) Close() {
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.metricsSrv.Shutdown(ctx)
	}
	if a.cache != nil {
		a.cache.Close()
	}
	a.pool.Close()
	_ = a.logger.Sync()
}
