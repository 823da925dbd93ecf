package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/luma-insights/prism/internal/angles"
	cfg "github.com/luma-insights/prism/internal/config"
	"github.com/luma-insights/prism/internal/health"
	"github.com/luma-insights/prism/internal/httpapi"
	"github.com/luma-insights/prism/internal/llm"
	"github.com/luma-insights/prism/internal/orchestrator"
	"github.com/luma-insights/prism/internal/respcache"
	"github.com/luma-insights/prism/internal/retrieval"
)

func main() {
	ctx := context.Background()

	c, err := cfg.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(c.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Capability clients.
	completions := llm.NewHTTPClient(c.LLM, logger)
	var retriever retrieval.Client = retrieval.NewHTTPClient(c.Retrieval, logger)

	// Optional Redis answer cache in front of retrieval.
	var rdb *redis.Client
	if c.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:         c.Redis.Addr,
			Password:     c.Redis.Password,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable at startup, answer cache degrades to misses", zap.Error(err))
		}
		retriever = respcache.Wrap(retriever, rdb, c.Redis, logger)
	}

	fallback, err := angles.LoadFallbackAngles(c.Pipeline.FallbackAngles)
	if err != nil {
		logger.Warn("Using compiled-in fallback angle set", zap.Error(err))
	}

	orch := orchestrator.New(completions, retriever, fallback, c.Pipeline, logger)

	// Hot-reload pipeline tunables when the config file changes.
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if mgr, err := cfg.NewManager(path, logger); err == nil {
			mgr.OnChange(func(updated *cfg.Config) {
				orch.SetPipelineConfig(updated.Pipeline)
			})
			if err := mgr.Start(ctx); err != nil {
				logger.Warn("Config watcher not started", zap.Error(err))
			}
			defer mgr.Stop()
		} else {
			logger.Warn("Config watcher unavailable", zap.Error(err))
		}
	}

	// Admin mux: health + metrics.
	hm := health.NewManager(logger)
	hm.Register(health.NewHTTPChecker("llm", c.LLM.BaseURL, true))
	hm.Register(health.NewHTTPChecker("retrieval", c.Retrieval.BaseURL, true))
	if rdb != nil {
		hm.Register(health.NewRedisChecker(rdb))
	}

	adminMux := http.NewServeMux()
	health.NewHTTPHandler(hm, logger).RegisterRoutes(adminMux)
	adminMux.Handle("/metrics", promhttp.Handler())

	adminSrv := &http.Server{
		Addr:         ":" + strconv.Itoa(c.Server.MetricsPort),
		Handler:      adminMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Admin HTTP server listening", zap.Int("port", c.Server.MetricsPort))
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Admin server failed", zap.Error(err))
		}
	}()

	// API mux: the one public operation.
	apiMux := http.NewServeMux()
	httpapi.NewQueryHandler(orch, logger).RegisterRoutes(apiMux)

	apiSrv := &http.Server{
		Addr:        ":" + strconv.Itoa(c.Server.Port),
		Handler:     apiMux,
		ReadTimeout: 30 * time.Second,
		// Writes stay open for the full pipeline run.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("API server listening", zap.Int("port", c.Server.Port))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API server shutdown incomplete", zap.Error(err))
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Admin server shutdown incomplete", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
