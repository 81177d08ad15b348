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

	"github.com/joho/godotenv"

	"github.com/quantfeed/binance-data/internal/binance"
	"github.com/quantfeed/binance-data/internal/config"
	"github.com/quantfeed/binance-data/internal/database"
	"github.com/quantfeed/binance-data/internal/model"
	"github.com/quantfeed/binance-data/internal/reconciler"
	"github.com/quantfeed/binance-data/internal/storage"
	"github.com/quantfeed/binance-data/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/service.yaml", "path to config file")
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols (empty = discover by quote asset)")
	quoteFlag := flag.String("quote", "USDT", "quote asset for symbol discovery")
	intervalFlag := flag.String("interval", "1m", "candle interval to reconcile")
	sinceFlag := flag.Duration("since", 0, "lookback window (0 = reconciler.lookback from config)")
	once := flag.Bool("once", false, "run a single pass and exit")
	flag.Parse()

	godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting reconcile",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *sinceFlag > 0 {
		cfg.Reconciler.Lookback = *sinceFlag
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

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	sink := storage.NewPostgres(pool, logger)

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

	rec := reconciler.New(cfg.Reconciler, client, sink, logger)

	if *once {
		os.Exit(runOnce(ctx, rec, symbols, interval, logger))
	}

	pairs := make([]reconciler.Pair, 0, len(symbols))
	for _, sym := range symbols {
		pairs = append(pairs, reconciler.Pair{Symbol: sym, Interval: interval})
	}
	runner := reconciler.NewRunner(cfg.Reconciler, rec, pairs, logger)
	if err := runner.Start(ctx); err != nil {
		logger.Error("failed to start reconciler", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := runner.Stop(shutdownCtx); err != nil {
		logger.Error("reconciler stop failed", "error", err)
		os.Exit(1)
	}
}

// runOnce reconciles every symbol once and prints each report.
func runOnce(ctx context.Context, rec *reconciler.Reconciler, symbols []string, interval model.Interval, logger *slog.Logger) int {
	exitCode := 0
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return 1
		}
		report, err := rec.Reconcile(ctx, symbol, interval)
		if err != nil {
			logger.Error("reconciliation failed",
				"symbol", symbol,
				"report_id", report.ID,
				"error", err,
			)
			exitCode = 1
			continue
		}
		printReport(report)
		if len(report.Failed) > 0 {
			exitCode = 1
		}
	}
	return exitCode
}

func printReport(r reconciler.Report) {
	fmt.Printf("report %s: %s %s window [%d, %d)\n",
		r.ID, r.Symbol, r.Interval, r.WindowStart, r.WindowEnd)
	if r.Clean() {
		fmt.Println("  coverage clean")
		return
	}
	for _, gap := range r.Missing {
		fmt.Printf("  missing  [%d, %d) %d buckets\n", gap.Start, gap.End, gap.Buckets(r.Interval))
	}
	for _, gap := range r.Backfilled {
		fmt.Printf("  backfilled [%d, %d)\n", gap.Start, gap.End)
	}
	for _, gap := range r.Failed {
		fmt.Printf("  FAILED   [%d, %d)\n", gap.Start, gap.End)
	}
	fmt.Printf("  %d records in %s\n", r.Records, r.Duration)
}
