package writer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/quantfeed/binance-data/internal/config"
	"github.com/quantfeed/binance-data/internal/connection"
	"github.com/quantfeed/binance-data/internal/model"
	"github.com/quantfeed/binance-data/internal/normalizer"
	"github.com/quantfeed/binance-data/internal/storage"
)

// Metrics counts writer activity since start.
type Metrics struct {
	Records       int64 // records accepted into the buffer
	Coalesced     int64 // candle updates folded into a buffered row
	Flushes       int64 // successful batch writes
	FailedFlushes int64 // batches that exhausted their retries
	Skipped       int64 // control frames and unknown event kinds
	ParseErrors   int64 // malformed payloads dropped
}

// Writer consumes raw feed messages, normalizes them, and writes batches to
// the sink. A batch that fails all its retries is parked and retried ahead
// of newer records on the next flush; records are never silently dropped.
type Writer struct {
	cfg    config.WriterConfig
	logger *slog.Logger

	input <-chan connection.RawMessage
	norm  *normalizer.Normalizer
	sink  storage.Sink

	mu      sync.Mutex
	buf     *Buffer
	parked  []model.MarketRecord
	metrics Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Writer draining input into sink.
func New(cfg config.WriterConfig, input <-chan connection.RawMessage, sink storage.Sink, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:    cfg,
		input:  input,
		sink:   sink,
		norm:   normalizer.New(logger),
		buf:    NewBuffer(cfg.BatchSize),
		logger: logger,
	}
}

// Start begins consuming messages and flushing batches.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains the buffer and shuts the writer down. The final flush runs
// under ctx, so a cancelled ctx bounds how long shutdown blocks.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("writer stop timed out")
		return ctx.Err()
	}

	if err := w.drain(ctx); err != nil {
		return err
	}
	w.logger.Info("writer stopped")
	return nil
}

// Stats returns a snapshot of the metrics.
func (w *Writer) Stats() Metrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case raw, ok := <-w.input:
			if !ok {
				return
			}
			w.handleMessage(raw)
		}
	}
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.maybeFlush()
		}
	}
}

func (w *Writer) handleMessage(raw connection.RawMessage) {
	rec, err := w.norm.Normalize(raw)
	if err != nil {
		w.mu.Lock()
		switch {
		case errors.Is(err, normalizer.ErrSkip):
			w.metrics.Skipped++
		default:
			w.metrics.ParseErrors++
			w.logger.Warn("dropping malformed message", "error", err)
		}
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	before := w.buf.Len()
	w.buf.Offer(rec, time.Now())
	if w.buf.Len() == before {
		w.metrics.Coalesced++
	}
	w.metrics.Records++
	full := w.buf.Len() >= w.cfg.BatchSize
	w.mu.Unlock()

	if full {
		w.maybeFlush()
	}
}

// maybeFlush writes one batch if the buffer is ready or a parked batch is
// waiting. Parked records go first so ordering survives a sink outage.
func (w *Writer) maybeFlush() {
	now := time.Now()

	w.mu.Lock()
	var batch []model.MarketRecord
	if len(w.parked) > 0 {
		batch = w.parked
		w.parked = nil
	} else if w.buf.Ready(w.cfg.BatchSize, w.cfg.FlushInterval, now) {
		batch = w.buf.Take(w.cfg.BatchSize, now)
	}
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	w.flushBatch(batch)
}

// flushBatch writes one batch, retrying with doubling backoff. On
// exhaustion the batch is parked for the next flush cycle.
func (w *Writer) flushBatch(batch []model.MarketRecord) {
	start := time.Now()
	backoff := w.cfg.FlushBackoff

	var err error
	for attempt := 0; attempt <= w.cfg.FlushRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-w.ctx.Done():
				w.park(batch)
				return
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		err = w.sink.BulkUpsert(w.ctx, batch)
		if err == nil {
			w.mu.Lock()
			w.metrics.Flushes++
			w.mu.Unlock()
			w.logger.Debug("flushed batch",
				"count", len(batch),
				"duration", time.Since(start),
			)
			return
		}

		w.logger.Warn("batch write failed",
			"error", err,
			"attempt", attempt+1,
			"count", len(batch),
		)
	}

	w.logger.Error("batch write exhausted retries, parking batch",
		"error", err,
		"count", len(batch),
	)
	w.mu.Lock()
	w.metrics.FailedFlushes++
	w.mu.Unlock()
	w.park(batch)
}

func (w *Writer) park(batch []model.MarketRecord) {
	w.mu.Lock()
	w.parked = append(batch, w.parked...)
	w.mu.Unlock()
}

// drain flushes everything left in the buffer, parked records first.
func (w *Writer) drain(ctx context.Context) error {
	w.mu.Lock()
	batch := w.parked
	w.parked = nil
	batch = append(batch, w.buf.Take(0, time.Now())...)
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := w.sink.BulkUpsert(ctx, batch); err != nil {
		w.logger.Error("final flush failed", "error", err, "count", len(batch))
		w.mu.Lock()
		w.metrics.FailedFlushes++
		w.mu.Unlock()
		return err
	}
	w.mu.Lock()
	w.metrics.Flushes++
	w.mu.Unlock()
	w.logger.Info("final flush complete", "count", len(batch))
	return nil
}
