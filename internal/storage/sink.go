package storage

import (
	"context"

	"github.com/quantfeed/binance-data/internal/model"
)

// Sink is the bulk-insert surface the pipeline writes through. Both the
// streaming writer and the gap reconciler use the same implementation, so
// every write is an idempotent upsert keyed by the record identity.
type Sink interface {
	// BulkUpsert writes a batch of records as one atomic unit. Re-sending
	// an identical batch leaves storage unchanged.
	BulkUpsert(ctx context.Context, records []model.MarketRecord) error

	// CandleBuckets returns the set of bucket open times already stored for
	// (symbol, interval) at or after since (ms).
	CandleBuckets(ctx context.Context, symbol string, interval model.Interval, since int64) (map[int64]struct{}, error)

	// LatestCandleTime returns the most recent stored bucket open time for
	// (symbol, interval). ok is false when no candles are stored.
	LatestCandleTime(ctx context.Context, symbol string, interval model.Interval) (ts int64, ok bool, err error)
}
