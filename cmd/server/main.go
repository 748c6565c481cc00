package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/soltrace/soltrace/service/cache"
	"github.com/soltrace/soltrace/service/classify"
	"github.com/soltrace/soltrace/service/config"
	"github.com/soltrace/soltrace/service/db"
	"github.com/soltrace/soltrace/service/indexer"
	"github.com/soltrace/soltrace/service/metrics"
	"github.com/soltrace/soltrace/service/price"
	"github.com/soltrace/soltrace/service/server"
	"github.com/soltrace/soltrace/service/solana"
	"github.com/soltrace/soltrace/service/temporal"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	// Verify database connection
	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Initialize database store
	store := db.NewStore(dbPool).WithMetrics(metricsCollector)

	// Initialize Solana RPC client. One endpoint is picked at random per
	// process to spread load across providers.
	endpoint, err := solana.SelectRandomEndpoint(cfg.RPCEndpoints)
	if err != nil {
		logger.Error("failed to select RPC endpoint", "error", err)
		os.Exit(1)
	}
	solanaClient := solana.NewClient(solana.NewRPCClient(endpoint), endpoint, metricsCollector, logger)
	solanaClient.SetRequestDelay(cfg.RequestDelay)
	logger.Info("initialized solana RPC client", "endpoint", endpoint)

	// Initialize the classified-transaction cache. Redis, with an
	// in-process fallback when it is unreachable.
	var cacheStore cache.Store
	redisStore, err := cache.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
	if err != nil {
		logger.Warn("redis unavailable, using in-memory cache", "addr", cfg.RedisAddr, "error", err)
		cacheStore = cache.NewMemoryStore(cfg.CacheTTL)
	} else {
		defer redisStore.Close()
		cacheStore = redisStore
		logger.Info("connected to redis cache", "addr", cfg.RedisAddr)
	}

	// Initialize price lookup for USD-denominated dust checks
	var prices classify.PriceLookup
	if cfg.PriceAPIURL != "" {
		prices = price.NewCachedLookup(price.NewClient(cfg.PriceAPIURL, logger), cfg.CacheTTL)
		logger.Info("initialized price lookup", "url", cfg.PriceAPIURL)
	} else {
		logger.Warn("PRICE_API_URL not set, dust checks fall back to raw amounts")
	}

	// Build the classification pipeline
	chain := classify.NewChain(logger)
	spamCfg := classify.SpamConfig{
		MinSolAmount:      cfg.MinSolAmount,
		MinTokenAmountUSD: cfg.MinTokenAmountUSD,
		MinConfidence:     cfg.MinConfidence,
		AllowFailed:       cfg.AllowFailed,
	}
	ix := indexer.New(solanaClient, cacheStore, chain, prices, spamCfg, indexer.Options{
		PageLimit: cfg.SignaturePageLimit,
		MaxPages:  cfg.MaxSignaturePages,
		Window:    cfg.FetchWindow,
	}, metricsCollector, logger)

	// Initialize Temporal client for schedule management
	temporalClient, err := temporal.NewClient(
		cfg.TemporalHost,
		cfg.TemporalNamespace,
		cfg.TemporalTaskQueue,
		logger,
	)
	if err != nil {
		logger.Error("failed to create temporal client", "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("connected to temporal",
		"host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
	)

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, store, temporalClient, ix, metricsCollector, logger)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
