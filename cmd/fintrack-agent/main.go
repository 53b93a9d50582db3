package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fintrack/fintrack-go/internal/config"
	"github.com/fintrack/fintrack-go/internal/handler"
	"github.com/fintrack/fintrack-go/internal/infra/localstate"
	"github.com/fintrack/fintrack-go/internal/infra/observability"
	"github.com/fintrack/fintrack-go/internal/infra/remote"
	"github.com/fintrack/fintrack-go/internal/infra/resilience"
	enginepkg "github.com/fintrack/fintrack-go/internal/sync"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = godotenv.Load()

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("agent_port", cfg.AgentPort),
		zap.String("remote_api_url", cfg.RemoteBaseURL),
		zap.String("state_dir", cfg.StateDir),
		zap.Duration("sync_interval", cfg.SyncInterval),
		zap.Duration("probe_ttl", cfg.ProbeTTL),
		zap.String("clear_policy", cfg.ClearPolicy),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "fintrack-agent")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Remote store client ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
	}
	cb := resilience.NewCircuitBreaker("remote-store")
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	remoteClient := remote.NewClient(httpClient, cfg.RemoteBaseURL, cb, resilienceCfg, cfg.ProbeTTL, metrics, logger)
	defer remoteClient.Close()

	// --- Local state ---
	local, err := localstate.New(cfg.StateDir)
	if err != nil {
		logger.Fatal("failed to open local state", zap.Error(err))
	}

	// --- Reconciliation engine ---
	engine, err := enginepkg.NewEngine(local, remoteClient, enginepkg.ParseClearPolicy(cfg.ClearPolicy), metrics, logger)
	if err != nil {
		logger.Fatal("failed to initialize engine", zap.Error(err))
	}

	// Warm the local view; offline is fine, the cached list serves.
	if _, err := engine.Load(context.Background()); err != nil {
		logger.Warn("initial load failed", zap.Error(err))
	}

	// --- Background sync ---
	// Skip ticks while unreachable, and sync as soon as connectivity comes
	// back instead of waiting for the flag.
	var wasOnline atomic.Bool
	scheduler := cron.New()
	spec := fmt.Sprintf("@every %s", cfg.SyncInterval)
	if _, err := scheduler.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.SyncInterval)
		defer cancel()

		online := remoteClient.Online(ctx)
		regained := online && !wasOnline.Swap(online)
		if !online || (!engine.SyncNeeded() && !regained) {
			return
		}
		if err := engine.Synchronize(ctx); err != nil {
			logger.Debug("sync tick failed", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("failed to schedule sync job", zap.Error(err))
	}
	scheduler.Start()

	// --- Local API ---
	router := handler.NewAgentRouter(engine, metrics, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.AgentPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("agent starting", zap.Int("port", cfg.AgentPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("agent failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("agent shutting down...")
	<-scheduler.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("agent forced shutdown", zap.Error(err))
	}

	// One last cycle so mutations taken right before shutdown are not
	// stranded until the next start.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	defer flushCancel()
	if err := engine.Synchronize(flushCtx); err != nil {
		logger.Warn("final sync failed, queue persisted for next start", zap.Error(err))
	}

	logger.Info("agent stopped")
}
