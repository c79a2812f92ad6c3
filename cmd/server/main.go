package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/amerfu/llmgate/internal/config"
	"github.com/amerfu/llmgate/internal/database"
	"github.com/amerfu/llmgate/internal/logger"
	"github.com/amerfu/llmgate/internal/router"
	"github.com/amerfu/llmgate/internal/services/account"
	"github.com/amerfu/llmgate/internal/services/billing"
	"github.com/amerfu/llmgate/internal/services/cache"
	"github.com/amerfu/llmgate/internal/services/key"
	"github.com/amerfu/llmgate/internal/services/pricing"
	"github.com/amerfu/llmgate/internal/services/providers"
	"github.com/amerfu/llmgate/internal/services/usage"
)

// startupTimeout bounds the initial store and bus connectivity checks so a
// wedged dependency fails the process instead of hanging it.
const startupTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	log, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	for _, provider := range cfg.MissingProviders() {
		log.Warn("Provider has no API key, its endpoints will reject requests",
			zap.String("provider", provider))
	}

	// Store and bus must be reachable at startup; a gateway that cannot
	// authenticate or bill must not accept traffic.
	dbConfig := &database.Config{
		DSN:             cfg.Store.URI,
		Database:        cfg.Store.Database,
		MaxConnections:  cfg.Store.MaxConnections,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	}
	if err := database.Initialize(dbConfig); err != nil {
		log.Error("Failed to initialize store", zap.Error(err))
		return 1
	}
	defer database.Close()

	bus, err := cache.NewBus(cfg.CacheBus.URI, cfg.CacheBus.Channel, log)
	if err != nil {
		log.Error("Failed to initialize cache bus", zap.Error(err))
		return 1
	}
	defer bus.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), startupTimeout)
	err = bus.Ping(pingCtx)
	cancelPing()
	if err != nil {
		log.Error("Cache bus is unreachable", zap.Error(err))
		return 1
	}

	replicaCache := cache.New(cfg.Cache, log)
	defer replicaCache.Close()
	bus.Listen(replicaCache.Invalidate)

	db := database.GetDB()
	accountService := account.NewService(db, log)
	keyService := key.NewService(db, log)
	pricingService := pricing.NewService(db, log)
	usageService := usage.NewService(db, log)
	registry := providers.NewRegistry(cfg, log)
	ledger := billing.NewLedger(billing.NewCachedPrices(replicaCache, pricingService), accountService, usageService, bus, log)

	handler := router.New(router.Deps{
		Config:   cfg,
		Logger:   log,
		DB:       db,
		Cache:    replicaCache,
		Bus:      bus,
		Registry: registry,
		Accounts: accountService,
		Keys:     keyService,
		Prices:   pricingService,
		Usage:    usageService,
		Ledger:   ledger,
	})

	// No WriteTimeout: streaming responses stay open for minutes and are
	// bounded by the stream idle timeout inside the meter instead.
	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     handler,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Gateway listening",
			zap.String("address", srv.Addr),
			zap.String("log_level", cfg.Logging.Level))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error("Server failed", zap.Error(err))
		return 1
	case sig := <-quit:
		log.Info("Shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return 1
	}

	log.Info("Shutdown complete")
	return 0
}
