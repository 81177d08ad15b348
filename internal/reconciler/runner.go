package reconciler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantfeed/binance-data/internal/config"
	"github.com/quantfeed/binance-data/internal/model"
)

// Pair names one (symbol, interval) series to keep reconciled.
type Pair struct {
	Symbol   string
	Interval model.Interval
}

// Runner drives periodic reconciliation passes over a fixed set of pairs
// with bounded concurrency.
type Runner struct {
	cfg    config.ReconcilerConfig
	rec    *Reconciler
	pairs  []Pair
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a Runner over pairs.
func NewRunner(cfg config.ReconcilerConfig, rec *Reconciler, pairs []Pair, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:    cfg,
		rec:    rec,
		pairs:  pairs,
		logger: logger,
	}
}

// Start begins the reconciliation loop. The first pass runs immediately.
func (r *Runner) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run()

	r.logger.Info("reconciler started",
		"interval", r.cfg.Interval,
		"concurrency", r.cfg.Concurrency,
		"pairs", len(r.pairs),
	)
	return nil
}

// Stop shuts the runner down, waiting for in-flight passes up to ctx.
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("reconciler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.runAll()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.runAll()
		}
	}
}

// runAll reconciles every pair concurrently under the semaphore.
func (r *Runner) runAll() {
	start := time.Now()

	sem := make(chan struct{}, r.cfg.Concurrency)
	var wg sync.WaitGroup
	var gaps, failures atomic.Int64

	for _, pair := range r.pairs {
		wg.Add(1)
		go func(p Pair) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-r.ctx.Done():
				return
			}

			report, err := r.rec.Reconcile(r.ctx, p.Symbol, p.Interval)
			if err != nil {
				r.logger.Warn("reconciliation pass failed",
					"symbol", p.Symbol,
					"interval", p.Interval,
					"err", err,
				)
				failures.Add(1)
				return
			}
			gaps.Add(int64(len(report.Missing)))
			failures.Add(int64(len(report.Failed)))
		}(pair)
	}

	wg.Wait()

	r.logger.Info("reconciliation cycle complete",
		"pairs", len(r.pairs),
		"gaps", gaps.Load(),
		"failures", failures.Load(),
		"duration", time.Since(start),
	)
}
