package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/reloader"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/redis"
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
	slog.Info("starting search service", "port", cfg.Server.Port, "index_dir", cfg.Index.Dir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	analyzer, err := tokenizer.New(tokenizer.ConfigFrom(cfg.Index.Analyzer))
	if err != nil {
		slog.Error("invalid analyzer configuration", "error", err)
		os.Exit(1)
	}
	dir, err := store.OpenFS(cfg.Index.Dir, nil)
	if err != nil {
		slog.Error("failed to open index directory", "error", err)
		os.Exit(1)
	}
	defer dir.Close()

	var recorder metrics.Recorder = metrics.Nop
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		recorder = m
		shutdown := metrics.StartServer(cfg.Metrics.Port, nil)
		defer shutdown(context.Background())
	}

	execOpts, err := executor.OptionsFromConfig(cfg.Search)
	if err != nil {
		slog.Error("invalid search configuration", "error", err)
		os.Exit(1)
	}
	execOpts.Metrics = recorder
	exec, err := executor.New(dir, analyzer, execOpts)
	if err != nil {
		slog.Error("failed to open index", "error", err)
		os.Exit(1)
	}
	defer exec.Close()

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cache.Options{TTL: cfg.Redis.CacheTTL, Metrics: recorder})
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	h := handler.New(exec, queryCache, handler.Options{Metrics: recorder})
	rl := reloader.New(h, exec.Generation, reloader.Options{})
	if cfg.Index.ReloadInterval > 0 {
		go rl.Poll(ctx, cfg.Index.ReloadInterval)
	}
	if cfg.Kafka.Enabled {
		// Each instance needs every event, so each joins its own group.
		host, _ := os.Hostname()
		group := fmt.Sprintf("%s-%s-%d", cfg.Kafka.ConsumerGroup, host, os.Getpid())
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, group, rl.HandleMessage, nil)
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("index-complete consumer error", "error", err)
			}
		}()
	}

	checker := health.NewChecker(nil)
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if !exec.Ready() {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "no committed generation yet"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("generation %d", exec.Generation())}
	})
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping, health.StatusDegraded))
	}

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.Timeout(cfg.Server.RequestTimeout, nil)(chain)
	if cfg.Server.RateLimit > 0 {
		limiter := ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateLimitWindow)
		defer limiter.Stop()
		chain = middleware.RateLimit(limiter)(chain)
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
	}
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
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
