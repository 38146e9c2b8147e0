package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/tournevent/collivery/internal/graphql"
	"github.com/tournevent/collivery/internal/server"
	"github.com/tournevent/collivery/internal/telemetry"
	"github.com/tournevent/collivery/internal/warmup"
	"go.uber.org/zap"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "collivery",
	Short:   "Collivery bridge - MDS Collivery shipping for shop checkouts",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the GraphQL server",
	RunE:  runServe,
}

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Prefetch Collivery reference data into the cache",
	RunE:  runWarm,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(warmCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Initialize telemetry
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracer, tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(context.Background())
	}

	store, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	newClient := clientFactory(cfg, store, logger, tracer, metrics)
	resolver := graphql.NewResolver(newClient, cfg.Checkout(), logger)

	logger.Info("Starting Collivery bridge",
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.String("transport", cfg.ColliveryTransport),
		zap.String("cache", cfg.CacheBackend),
	)

	// Start HTTP server
	srv := server.New(server.Config{Port: cfg.Port}, resolver, reg, logger)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runWarm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	newClient := clientFactory(cfg, store, logger, nil, nil)
	result, err := warmup.Run(ctx, newClient, warmup.DefaultOptions(logger))
	if err != nil {
		return fmt.Errorf("warm-up failed: %w", err)
	}

	for _, name := range slices.Sorted(maps.Keys(result)) {
		fmt.Fprintf(cmd.OutOrStdout(), "%-15s %d\n", name, result[name])
	}
	return nil
}
