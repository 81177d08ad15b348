package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/quantfeed/binance-data/internal/binance"
	"github.com/quantfeed/binance-data/internal/config"
	"github.com/quantfeed/binance-data/internal/database"
	"github.com/quantfeed/binance-data/internal/model"
	"github.com/quantfeed/binance-data/internal/storage"
	"github.com/quantfeed/binance-data/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/service.yaml", "path to config file")
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols (empty = discover by quote asset)")
	quoteFlag := flag.String("quote", "USDT", "quote asset for symbol discovery")
	intervalFlag := flag.String("interval", "1m", "candle interval to backfill")
	startFlag := flag.String("start", "earliest", "start time: ms epoch or 'earliest'")
	endFlag := flag.String("end", "now", "end time: ms epoch or 'now'")
	concurrency := flag.Int("concurrency", 4, "symbols backfilled in parallel")
	flag.Parse()

	godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting bootstrap",
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

	end, err := parseTimeFlag(*endFlag, time.Now().UnixMilli())
	if err != nil {
		logger.Error("invalid -end", "error", err)
		os.Exit(1)
	}

	// Symbols backfill independently; one failure does not abort the rest.
	var g errgroup.Group
	g.SetLimit(*concurrency)
	var mu sync.Mutex
	var failures atomic.Int64

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			count, err := backfillSymbol(ctx, client, sink, cfg.Writer.BatchSize, symbol, interval, *startFlag, end, logger)
			if err != nil {
				logger.Error("backfill failed", "symbol", symbol, "error", err)
				failures.Add(1)
				return nil
			}
			mu.Lock()
			fmt.Printf("%s\t%s\t%d candles\n", symbol, interval, count)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if failures.Load() > 0 || ctx.Err() != nil {
		os.Exit(1)
	}
}

// backfillSymbol pages one symbol's history into the sink in batch-sized
// chunks and returns the number of candles written.
func backfillSymbol(
	ctx context.Context,
	client *binance.Client,
	sink storage.Sink,
	batchSize int,
	symbol string,
	interval model.Interval,
	startFlag string,
	end int64,
	logger *slog.Logger,
) (int, error) {
	var start int64
	if startFlag == "earliest" {
		earliest, err := client.EarliestKlineTime(ctx, symbol, interval)
		if err != nil {
			return 0, fmt.Errorf("resolving earliest kline: %w", err)
		}
		start = earliest
	} else {
		var err error
		start, err = parseTimeFlag(startFlag, 0)
		if err != nil {
			return 0, fmt.Errorf("invalid -start: %w", err)
		}
	}
	if start >= end {
		return 0, nil
	}

	logger.Info("backfilling symbol",
		"symbol", symbol,
		"interval", interval,
		"start", start,
		"end", end,
	)

	total := 0
	chunkMs := int64(batchSize) * interval.Millis()
	for cursor := start; cursor < end; cursor += chunkMs {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		chunkEnd := cursor + chunkMs
		if chunkEnd > end {
			chunkEnd = end
		}

		records, err := client.FetchKlines(ctx, symbol, interval, cursor, chunkEnd)
		if err != nil {
			return total, err
		}
		if len(records) == 0 {
			continue
		}
		if err := sink.BulkUpsert(ctx, records); err != nil {
			return total, fmt.Errorf("writing chunk at %d: %w", cursor, err)
		}
		total += len(records)
	}

	return total, nil
}

// parseTimeFlag accepts a millisecond epoch or the keyword that maps to
// fallback ("now"/"earliest" handled by callers).
func parseTimeFlag(s string, fallback int64) (int64, error) {
	if s == "now" {
		return fallback, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("want ms epoch or keyword, got %q", s)
	}
	return ms, nil
}
