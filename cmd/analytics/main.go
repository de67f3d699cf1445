// Command analytics starts the standalone draw analytics service.
//
// It consumes draw and upload events from Kafka, aggregates them in memory
// (draws by mode and outcome, exact-match rate, fallback usage, latency
// percentiles, top datasets), snapshots the totals to PostgreSQL and serves
// them at GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/postgres"
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
	slog.Info("starting analytics service", "port", cfg.Analytics.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := aggregator.NewStore(db)

	agg := analytics.NewAggregator()
	if latest, err := store.LatestSnapshot(ctx); err != nil {
		slog.Warn("could not restore analytics snapshot", "error", err)
	} else if latest != nil {
		agg.Restore(*latest)
		slog.Info("analytics restored from snapshot", "total_draws", latest.TotalDraws)
	}

	eventConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DrawEvents, "analytics", analytics.HandleEvent(agg))
	defer eventConsumer.Close()
	go func() {
		if err := agg.Start(ctx, eventConsumer); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.DrawEvents)

	snapshotsDone := make(chan struct{})
	go func() {
		defer close(snapshotsDone)
		aggregator.RunPeriodic(ctx, store, agg, cfg.Analytics.SnapshotInterval)
	}()

	analyticsHandler := analytics.NewHandler(agg, store)

	checker := health.NewChecker()
	checker.Register("postgres", health.Degradable(db.HealthCheck()))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", analyticsHandler.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(cfg.Server.CORSOrigins, 600)(chain)
	}
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
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
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	<-snapshotsDone
	slog.Info("analytics service stopped")
}
