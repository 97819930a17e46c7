// lineserved is the line-existence search server. It answers one query per
// request line over TCP or TLS with a fixed set of response lines, backed
// by a configurable matching engine.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lineserve/lineserve/internal/analytics"
	"github.com/lineserve/lineserve/internal/cache"
	"github.com/lineserve/lineserve/internal/search"
	"github.com/lineserve/lineserve/internal/server"
	"github.com/lineserve/lineserve/pkg/config"
	"github.com/lineserve/lineserve/pkg/health"
	"github.com/lineserve/lineserve/pkg/kafka"
	"github.com/lineserve/lineserve/pkg/logger"
	"github.com/lineserve/lineserve/pkg/metrics"
	"github.com/lineserve/lineserve/pkg/postgres"
	"github.com/lineserve/lineserve/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.WithComponent("main")

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := server.Deps{
		Registry: search.NewRegistry(),
		Metrics:  metrics.New(),
	}
	deps.Registry.SetBuildObserver(func(algorithm string, buildTime time.Duration) {
		deps.Metrics.EngineBuildSeconds.WithLabelValues(algorithm).Observe(buildTime.Seconds())
	})
	aggregator := analytics.NewAggregator()
	deps.Aggregator = aggregator

	// Warm up the configured engine before binding the listener. An unknown
	// algorithm or unreadable corpus is a startup failure, not something to
	// discover on the first connection.
	opts := search.OptionsFromConfig(cfg.Search)
	engine, err := deps.Registry.Resolve(cfg.Search.Algorithm, opts)
	if err != nil {
		log.Error("engine warm-up failed",
			"algorithm", cfg.Search.Algorithm,
			"error", err,
		)
		os.Exit(1)
	}
	log.Info("engine ready",
		"algorithm", engine.Algorithm(),
		"corpus", cfg.Search.CorpusPath,
		"reread_on_query", cfg.Search.RereadOnQuery,
	)

	checker := health.NewChecker()
	checker.Register("corpus", func(ctx context.Context) health.ComponentHealth {
		if _, err := os.Stat(cfg.Search.CorpusPath); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, query cache disabled", "error", err)
		} else {
			deps.Cache = cache.New(redisClient, cfg.Redis.CacheTTL)
			checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
				if err := redisClient.Ping(ctx); err != nil {
					return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
				}
				return health.ComponentHealth{Status: health.StatusUp}
			})
			defer redisClient.Close()
		}
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topic)
		collector := analytics.NewCollector(producer, cfg.Kafka.BufferSize)
		collector.Start(ctx)
		deps.Collector = collector
		defer collector.Close()
		defer producer.Close()
	}

	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(cfg.Postgres)
		if err != nil {
			log.Warn("postgres unavailable, snapshot store disabled", "error", err)
		} else {
			store := analytics.NewStore(pgClient)
			go store.RunPeriodic(ctx, aggregator, cfg.Postgres.SnapshotInterval)
			checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
				if err := pgClient.DB.PingContext(ctx); err != nil {
					return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
				}
				return health.ComponentHealth{Status: health.StatusUp}
			})
			defer pgClient.Close()
		}
	}

	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port, func(mux *http.ServeMux) {
			mux.HandleFunc("/health/live", checker.LiveHandler())
			mux.HandleFunc("/health/ready", checker.ReadyHandler())
			mux.HandleFunc("/debug/engines", engineStatsHandler(deps.Registry))
			mux.HandleFunc("/debug/analytics", analyticsHandler(aggregator))
		})
		log.Info("metrics server started", "port", cfg.Metrics.Port)
	}

	dispatcher, err := server.NewDispatcher(cfg, deps)
	if err != nil {
		log.Error("dispatcher setup failed", "error", err)
		os.Exit(1)
	}
	if err := dispatcher.Start(ctx); err != nil {
		log.Error("server start failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Error("dispatcher shutdown failed", "error", err)
	}
	if metricsShutdown != nil {
		if err := metricsShutdown(shutdownCtx); err != nil {
			log.Error("metrics server shutdown failed", "error", err)
		}
	}
	log.Info("server stopped")
}

func engineStatsHandler(registry *search.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(registry.StatsByKey())
	}
}

func analyticsHandler(aggregator *analytics.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(aggregator.Snapshot())
	}
}
