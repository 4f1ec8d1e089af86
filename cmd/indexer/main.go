package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/rebuild"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	interval := flag.Duration("interval", 0, "rebuild repeatedly at this interval instead of once")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer", "index_dir", cfg.Index.Dir, "source", cfg.Source.Type)

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

	src, closeSrc, err := openSource(ctx, cfg)
	if err != nil {
		slog.Error("failed to open document source", "error", err)
		os.Exit(1)
	}
	defer closeSrc()

	opts := rebuild.Options{Metrics: metrics.Nop}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, nil)
		defer producer.Close()
		opts.Notifier = rebuild.NewKafkaNotifier(producer, nil)
		slog.Info("index-complete events enabled", "topic", cfg.Kafka.Topics.IndexComplete)
	}

	if *interval <= 0 {
		if _, err := rebuild.Run(ctx, src, dir, analyzer, opts); err != nil {
			slog.Error("rebuild failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if cfg.Metrics.Enabled {
		opts.Metrics = metrics.New()
		shutdown := metrics.StartServer(cfg.Metrics.Port, nil)
		defer shutdown(context.Background())
	}
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		if _, err := rebuild.Run(ctx, src, dir, analyzer, opts); err != nil {
			slog.Error("rebuild failed", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("indexer stopped")
			return
		case <-ticker.C:
		}
	}
}

func openSource(ctx context.Context, cfg *config.Config) (source.Source, func(), error) {
	switch cfg.Source.Type {
	case "postgres":
		client, err := postgres.New(ctx, cfg.Postgres, nil)
		if err != nil {
			return nil, nil, err
		}
		src, err := source.NewPostgresSourceFromConfig(client, cfg.Source, nil)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return src, func() { client.Close() }, nil
	default:
		src, err := source.NewFileSource(cfg.Source.Root, source.FileOptions{
			Include:      cfg.Source.Include,
			Extensions:   cfg.Source.Extensions,
			MaxFileBytes: cfg.Source.MaxFileBytes,
			Workers:      cfg.Source.Workers,
		})
		if err != nil {
			return nil, nil, err
		}
		return src, func() {}, nil
	}
}
