package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chromegate/prerender/internal/breaker"
	"github.com/chromegate/prerender/internal/cache"
	"github.com/chromegate/prerender/internal/cdpconn"
	"github.com/chromegate/prerender/internal/chrome"
	"github.com/chromegate/prerender/internal/config"
	"github.com/chromegate/prerender/internal/coordinator"
	"github.com/chromegate/prerender/internal/logger"
	"github.com/chromegate/prerender/internal/policy"
	"github.com/chromegate/prerender/internal/server"
)

// shutdownTimeout bounds how long the process waits for the HTTP server
// and page pool to drain in-flight work during a graceful shutdown.
const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("c", "config.yaml", "config file path")
	flag.Parse()

	fmt.Println("gateway starting...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, cleanup, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.FilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, cancelDial := context.WithTimeout(context.Background(), shutdownTimeout)
	browser, err := cdpconn.Dial(ctx, cfg.CDPDebugURL(), log)
	cancelDial()
	if err != nil {
		log.Fatal("failed to reach browser", zap.Error(err), zap.String("debug_url", cfg.CDPDebugURL()))
	}
	defer browser.Close()

	pol := policy.New(cfg.Policy.AllowedDomains, cfg.Policy.BlockFonts)

	sessionCfg := chrome.SessionConfig{
		MaxIterations: cfg.Pool.MaxIterations,
		PollInterval:  cfg.Render.PollInterval,
		SettleWindow:  cfg.Render.SettleWindow,
		UserAgent:     cfg.Render.UserAgent,
	}
	pool := chrome.NewPool(browser, cfg.Pool.Concurrency, sessionCfg, pol, log)
	defer pool.Shutdown()

	cacheFacade, err := buildCache(cfg.Cache, log)
	if err != nil {
		log.Fatal("failed to initialize cache backend", zap.Error(err))
	}
	if closer, ok := cacheFacade.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	br := breaker.New(breaker.Config{
		Enabled:      cfg.Breaker.Enabled,
		FailMax:      cfg.Breaker.FailMax,
		ResetTimeout: cfg.Breaker.ResetTimeout,
	}, log)

	coord := coordinator.New(pool, cacheFacade, br, pol, log, cfg.Render.Timeout)

	srv := server.New(cfg, coord, log)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	log.Info("gateway started",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Int("pool_capacity", cfg.Pool.Concurrency),
		zap.String("cdp", cfg.CDPDebugURL()),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}

	log.Info("shutting down page pool...")
	pool.Shutdown()

	log.Info("gateway stopped")
}

// buildCache selects the cache.Facade implementation named by cfg.Backend.
// Config.Validate already guarantees the backend-specific fields it needs
// are present.
func buildCache(cfg config.CacheConfig, log *zap.Logger) (cache.Facade, error) {
	switch cfg.Backend {
	case "disk":
		return cache.NewDisk(cfg.Root, cache.TTL(cfg.TTL))
	case "object-store":
		return cache.NewObjectStore(context.Background(), cfg.Bucket, cache.TTL(cfg.TTL), cfg.CredentialsFile)
	default:
		log.Info("cache backend disabled")
		return cache.Noop{}, nil
	}
}
