package main

import (
	"context"
	"fmt"

	"github.com/tournevent/collivery/internal/config"
	"github.com/tournevent/collivery/internal/telemetry"
	"github.com/tournevent/collivery/pkg/cache"
	"github.com/tournevent/collivery/pkg/collivery"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(level)
}

func initTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return nil, func(context.Context) error { return nil }, nil
	}

	return telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version, cfg.Attributes()...)
}

// openCache builds the shared cache on the configured backend.
func openCache(ctx context.Context, cfg *config.Config) (*cache.Cache, error) {
	var (
		store cache.Store
		err   error
	)
	switch cfg.CacheBackend {
	case config.CacheMemory:
		store = cache.NewMemoryStore()
	case config.CacheSQLite:
		store, err = cache.OpenSQLite(ctx, cfg.CacheSQLitePath)
	case config.CachePostgres:
		store, err = cache.OpenPostgres(ctx, cfg.CachePostgresDSN)
	default:
		store, err = cache.NewFileStore(cfg.CacheDir)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s cache: %w", cfg.CacheBackend, err)
	}
	return cache.New(store, cache.WithMirrorTTL(cfg.CacheMirrorTTL)), nil
}

// clientFactory returns a constructor for per-caller Collivery clients sharing c.
func clientFactory(cfg *config.Config, c *cache.Cache, logger *otelzap.Logger, tracer trace.Tracer, metrics *telemetry.Metrics) func() *collivery.Client {
	var opts []collivery.Option
	if metrics != nil {
		opts = append(opts, collivery.WithRecorder(metrics))
	}
	colliveryCfg := cfg.Collivery()
	return func() *collivery.Client {
		return collivery.New(colliveryCfg, c, logger, tracer, opts...)
	}
}
