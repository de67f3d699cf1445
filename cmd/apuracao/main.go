// Command apuracao serves the draw API: dataset uploads, dataset summaries and
// draws over the stored datasets, with a Redis result cache and a Kafka-warmed
// in-memory catalog.
//
// Usage:
//
//	go run ./cmd/apuracao [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/cache"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/executor"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/handler"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/dataset/catalog"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/dataset/consumer"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/apuracao/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/apuracao/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting apuracao service", "port", cfg.Server.Port, "default_mode", cfg.Draw.DefaultMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	stopMetrics := metrics.StartServer(cfg.Metrics)

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := dataset.NewRepository(db)
	datasets := catalog.New(repo, cfg.Draw.CatalogCapacity, m)

	ingestProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DatasetIngest)
	defer ingestProducer.Close()
	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DrawEvents)
	defer analyticsProducer.Close()

	collector := analytics.NewCollector(analyticsProducer, cfg.Analytics.BufferSize)
	collector.Start(ctx)
	defer collector.Close()
	slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.DrawEvents)

	// Warm both store widths a draw can ask for.
	warmConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DatasetIngest, "catalog",
		consumer.HandleMessage(datasets, 0, cfg.Draw.PartitionWidth))
	defer warmConsumer.Close()
	go func() {
		if err := consumer.New(warmConsumer).Start(ctx); err != nil {
			slog.Error("dataset consumer error", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("postgres", db.HealthCheck())

	var drawCache *cache.DrawCache
	redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, draw caching disabled", "error", err)
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		})
	} else {
		defer redisClient.Close()
		breaker := resilience.NewCircuitBreaker("draw-cache", resilience.CircuitBreakerConfig{
			FailureThreshold:    5,
			ResetTimeout:        30 * time.Second,
			HalfOpenMaxRequests: 1,
			OnStateChange: func(name string, from, to resilience.State) {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			},
		})
		drawCache = cache.New(redisClient, cfg.Redis.CacheTTL, breaker, m)
		checker.Register("redis", redisClient.HealthCheck())
		slog.Info("draw cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	tracer := tracing.New(cfg.Tracing)
	exec := executor.New(datasets, cfg.Draw, m, tracer)
	drawHandler := handler.New(exec, drawCache, collector, m, cfg.Draw.MaxIgnoredKeys).WithEvictor(datasets)

	pub := publisher.New(repo, ingestProducer, cfg.Draw.MaxUploadBytes, m).WithTracker(collector)
	ingestHandler := ingesthandler.New(pub, repo, datasets, cfg.Draw.PartitionWidth, cfg.Draw.MaxUploadBytes)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/datasets", ingestHandler.Upload)
	mux.HandleFunc("GET /api/v1/datasets/{id}", ingestHandler.Get)
	mux.HandleFunc("POST /api/v1/draws", drawHandler.Draw)
	mux.HandleFunc("GET /api/v1/draws/cache/stats", drawHandler.CacheStats)
	mux.HandleFunc("POST /api/v1/draws/cache/invalidate", drawHandler.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit.Window)
		defer limiter.Close()
		trusted, err := cfg.Server.TrustedProxyPrefixes()
		if err != nil {
			slog.Error("invalid trusted proxies", "error", err)
			os.Exit(1)
		}
		chain = middleware.RateLimit(limiter, cfg.RateLimit.Requests, trusted)(chain)
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(cfg.Server.CORSOrigins, 600)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if err := stopMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}()

	slog.Info("apuracao service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("apuracao service stopped")
}
