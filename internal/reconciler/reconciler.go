package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/quantfeed/binance-data/internal/config"
	"github.com/quantfeed/binance-data/internal/model"
	"github.com/quantfeed/binance-data/internal/storage"
)

// Fetcher retrieves historical candles from the exchange.
type Fetcher interface {
	FetchKlines(ctx context.Context, symbol string, interval model.Interval, start, end int64) ([]model.MarketRecord, error)
}

// Report describes one reconciliation pass over a (symbol, interval) pair.
type Report struct {
	ID          uuid.UUID
	Symbol      string
	Interval    model.Interval
	WindowStart int64 // ms, inclusive
	WindowEnd   int64 // ms, exclusive
	Missing     []Range
	Backfilled  []Range
	Failed      []Range
	Records     int
	Duration    time.Duration
}

// Clean reports whether the pass found full coverage.
func (r Report) Clean() bool { return len(r.Missing) == 0 }

// Reconciler detects candle coverage gaps against exchange history and
// backfills them through the sink. Concurrent passes over the same
// (symbol, interval) pair collapse into one via singleflight.
type Reconciler struct {
	cfg     config.ReconcilerConfig
	fetcher Fetcher
	sink    storage.Sink
	logger  *slog.Logger
	group   singleflight.Group

	// now is stubbed in tests.
	now func() time.Time
}

// New creates a Reconciler.
func New(cfg config.ReconcilerConfig, fetcher Fetcher, sink storage.Sink, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		cfg:     cfg,
		fetcher: fetcher,
		sink:    sink,
		logger:  logger,
		now:     time.Now,
	}
}

// Reconcile runs one pass for (symbol, interval). If a pass for the same
// pair is already in flight, the caller shares its result instead of
// starting another.
func (r *Reconciler) Reconcile(ctx context.Context, symbol string, interval model.Interval) (Report, error) {
	key := symbol + "/" + string(interval)
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.reconcileOnce(ctx, symbol, interval)
	})
	// reconcileOnce returns its report even on failure so callers can still
	// log the pass header.
	rep, _ := v.(Report)
	return rep, err
}

func (r *Reconciler) reconcileOnce(ctx context.Context, symbol string, interval model.Interval) (Report, error) {
	start := r.now()

	// The current bucket is still open; the window ends at its open time.
	windowEnd := interval.Truncate(start.UnixMilli())
	windowStart := interval.Truncate(windowEnd - r.cfg.Lookback.Milliseconds())

	report := Report{
		ID:          uuid.New(),
		Symbol:      symbol,
		Interval:    interval,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}

	stored, err := r.sink.CandleBuckets(ctx, symbol, interval, windowStart)
	if err != nil {
		return report, fmt.Errorf("loading stored buckets for %s %s: %w", symbol, interval, err)
	}

	report.Missing = MissingRanges(interval, windowStart, windowEnd, stored)
	if len(report.Missing) == 0 {
		report.Duration = r.now().Sub(start)
		r.logger.Debug("coverage clean",
			"symbol", symbol,
			"interval", interval,
			"report_id", report.ID,
		)
		return report, nil
	}

	for _, gap := range report.Missing {
		if err := r.backfill(ctx, symbol, interval, gap, &report); err != nil {
			// A failed range is reported, not fatal; later ranges still run.
			r.logger.Warn("backfill failed",
				"symbol", symbol,
				"interval", interval,
				"gap_start", gap.Start,
				"gap_end", gap.End,
				"error", err,
			)
			report.Failed = append(report.Failed, gap)
		}
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
	}

	report.Duration = r.now().Sub(start)
	r.logger.Info("reconciliation pass complete",
		"symbol", symbol,
		"interval", interval,
		"report_id", report.ID,
		"gaps", len(report.Missing),
		"backfilled", len(report.Backfilled),
		"failed", len(report.Failed),
		"records", report.Records,
		"duration", report.Duration,
	)
	return report, nil
}

func (r *Reconciler) backfill(ctx context.Context, symbol string, interval model.Interval, gap Range, report *Report) error {
	records, err := r.fetcher.FetchKlines(ctx, symbol, interval, gap.Start, gap.End)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		// Nothing to write; the exchange has no data for this span (listing
		// gap or delisted period). Coverage stays missing and the next pass
		// will see the same hole.
		report.Backfilled = append(report.Backfilled, gap)
		return nil
	}
	if err := r.sink.BulkUpsert(ctx, records); err != nil {
		return fmt.Errorf("writing backfill batch: %w", err)
	}
	report.Backfilled = append(report.Backfilled, gap)
	report.Records += len(records)
	return nil
}
