package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quantfeed/binance-data/internal/binance"
	"github.com/quantfeed/binance-data/internal/config"
	"github.com/quantfeed/binance-data/internal/connection"
	"github.com/quantfeed/binance-data/internal/database"
	"github.com/quantfeed/binance-data/internal/model"
	"github.com/quantfeed/binance-data/internal/storage"
	"github.com/quantfeed/binance-data/internal/version"
	"github.com/quantfeed/binance-data/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/service.yaml", "path to config file")
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols (empty = discover by quote asset)")
	quoteFlag := flag.String("quote", "USDT", "quote asset for symbol discovery")
	intervalFlag := flag.String("interval", "1m", "candle interval to stream")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting ingester",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	interval, err := model.ParseInterval(*intervalFlag)
	if err != nil {
		logger.Error("invalid interval", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	sink := storage.NewPostgres(pool, logger)
	if err := sink.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	client := binance.NewClient(cfg.Exchange.RestURL,
		binance.WithLogger(logger),
		binance.WithTimeout(cfg.Exchange.Timeout),
		binance.WithRetries(cfg.Exchange.MaxRetries, time.Second),
	)

	symbols, err := binance.ResolveSymbols(ctx, client, *symbolsFlag, *quoteFlag)
	if err != nil {
		logger.Error("failed to resolve symbols", "error", err)
		os.Exit(1)
	}
	logger.Info("resolved symbols", "count", len(symbols), "interval", interval)

	subs := make([]connection.Subscription, 0, 2*len(symbols))
	for _, sym := range symbols {
		subs = append(subs,
			connection.Subscription{Symbol: sym, Kind: connection.StreamTrade},
			connection.Subscription{Symbol: sym, Kind: connection.StreamKline, Interval: interval},
		)
	}

	mgrCfg := connection.DefaultManagerConfig()
	mgrCfg.WSURL = cfg.Exchange.WSURL
	mgrCfg.ReconnectBaseDelay = cfg.Stream.ReconnectBaseDelay
	mgrCfg.ReconnectMaxDelay = cfg.Stream.ReconnectMaxDelay
	mgrCfg.MaxReconnects = cfg.Stream.MaxReconnects
	mgrCfg.StableResetAfter = cfg.Stream.StableResetAfter
	mgrCfg.SubscribeTimeout = cfg.Stream.SubscribeTimeout
	mgrCfg.PingInterval = cfg.Stream.PingInterval
	mgrCfg.ReadTimeout = cfg.Stream.ReadTimeout
	mgrCfg.BufferSize = cfg.Stream.BufferSize

	manager := connection.NewManager(mgrCfg, subs, logger)
	w := writer.New(cfg.Writer, manager.Messages(), sink, logger)

	// The pipeline lives under the root ctx for the whole process lifetime.
	if err := manager.Start(ctx); err != nil {
		logger.Error("failed to start stream session", "error", err)
		os.Exit(1)
	}
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start writer", "error", err)
		os.Exit(1)
	}

	logger.Info("ingester running",
		"instance_id", cfg.Instance.ID,
		"subscriptions", len(subs),
	)

	exitCode := 0
	select {
	case <-ctx.Done():
	case <-manager.Done():
		// The session died on its own; a supervisor restart is required.
		logger.Error("stream session terminated", "error", manager.Err())
		exitCode = 1
	}
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := manager.Stop(shutdownCtx); err != nil {
		logger.Error("stream manager stop failed", "error", err)
		exitCode = 1
	}
	if err := w.Stop(shutdownCtx); err != nil {
		logger.Error("writer stop failed", "error", err)
		exitCode = 1
	}

	stats := w.Stats()
	logger.Info("ingester stopped",
		"records", stats.Records,
		"flushes", stats.Flushes,
		"failed_flushes", stats.FailedFlushes,
		"parse_errors", stats.ParseErrors,
	)
	if stats.FailedFlushes > 0 {
		exitCode = 1
	}
	os.Exit(exitCode)
}
