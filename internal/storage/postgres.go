package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfeed/binance-data/internal/model"
)

const candleUpsertSQL = `
	INSERT INTO candles (symbol, interval, open_time, open, high, low, close,
	                     volume, quote_volume, trade_count, close_time, closed, ingest_time)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (symbol, interval, open_time) DO UPDATE SET
		open         = EXCLUDED.open,
		high         = EXCLUDED.high,
		low          = EXCLUDED.low,
		close        = EXCLUDED.close,
		volume       = EXCLUDED.volume,
		quote_volume = EXCLUDED.quote_volume,
		trade_count  = EXCLUDED.trade_count,
		close_time   = EXCLUDED.close_time,
		closed       = EXCLUDED.closed,
		ingest_time  = EXCLUDED.ingest_time
	WHERE NOT candles.closed`

const tradeInsertSQL = `
	INSERT INTO trades (symbol, trade_id, event_time, price, quantity, buyer_maker, ingest_time)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (symbol, trade_id) DO NOTHING`

// Postgres implements Sink on a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres creates a Postgres sink.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger}
}

// EnsureSchema creates the candles and trades tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			symbol       TEXT        NOT NULL,
			interval     TEXT        NOT NULL,
			open_time    BIGINT      NOT NULL,
			open         NUMERIC     NOT NULL,
			high         NUMERIC     NOT NULL,
			low          NUMERIC     NOT NULL,
			close        NUMERIC     NOT NULL,
			volume       NUMERIC     NOT NULL,
			quote_volume NUMERIC     NOT NULL,
			trade_count  BIGINT      NOT NULL,
			close_time   BIGINT      NOT NULL,
			closed       BOOLEAN     NOT NULL,
			ingest_time  BIGINT      NOT NULL,
			PRIMARY KEY (symbol, interval, open_time)
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			symbol      TEXT    NOT NULL,
			trade_id    BIGINT  NOT NULL,
			event_time  BIGINT  NOT NULL,
			price       NUMERIC NOT NULL,
			quantity    NUMERIC NOT NULL,
			buyer_maker BOOLEAN NOT NULL,
			ingest_time BIGINT  NOT NULL,
			PRIMARY KEY (symbol, trade_id)
		)`,
		`CREATE INDEX IF NOT EXISTS trades_symbol_event_time ON trades (symbol, event_time)`,
	}

	for _, stmt := range ddl {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// queueRecord adds the insert statement for one record to the batch.
func queueRecord(batch *pgx.Batch, r model.MarketRecord) error {
	switch r.Type {
	case model.RecordCandle:
		batch.Queue(candleUpsertSQL,
			r.Symbol, string(r.Interval), r.EventTime,
			r.Open, r.High, r.Low, r.Close,
			r.Volume, r.QuoteVolume, r.TradeCount,
			r.CloseTime, r.Closed, r.IngestTime,
		)
	case model.RecordTrade:
		batch.Queue(tradeInsertSQL,
			r.Symbol, r.TradeID, r.EventTime,
			r.Price, r.Quantity, r.BuyerMaker, r.IngestTime,
		)
	default:
		return fmt.Errorf("unknown record type %q", r.Type)
	}
	return nil
}

// BulkUpsert writes a batch of records inside one transaction. The batch is
// a single atomic unit: either every row lands or none do.
func (p *Postgres) BulkUpsert(ctx context.Context, records []model.MarketRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		if err := queueRecord(batch, r); err != nil {
			return fmt.Errorf("bulk upsert: %w", err)
		}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin bulk upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)

	var conflicts int
	for range records {
		ct, err := results.Exec()
		if err != nil {
			results.Close()
			return fmt.Errorf("bulk upsert: %w", err)
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit bulk upsert: %w", err)
	}

	p.logger.Debug("bulk upsert complete",
		"records", len(records),
		"conflicts", conflicts,
	)

	return nil
}

// CandleBuckets returns stored bucket open times for (symbol, interval) at or
// after since.
func (p *Postgres) CandleBuckets(ctx context.Context, symbol string, interval model.Interval, since int64) (map[int64]struct{}, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT open_time FROM candles
		 WHERE symbol = $1 AND interval = $2 AND open_time >= $3`,
		symbol, string(interval), since,
	)
	if err != nil {
		return nil, fmt.Errorf("query candle buckets: %w", err)
	}
	defer rows.Close()

	buckets := make(map[int64]struct{})
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan candle bucket: %w", err)
		}
		buckets[ts] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle buckets: %w", err)
	}

	return buckets, nil
}

// LatestCandleTime returns the newest stored bucket open time.
func (p *Postgres) LatestCandleTime(ctx context.Context, symbol string, interval model.Interval) (int64, bool, error) {
	var ts *int64
	err := p.pool.QueryRow(ctx,
		`SELECT max(open_time) FROM candles WHERE symbol = $1 AND interval = $2`,
		symbol, string(interval),
	).Scan(&ts)
	if err != nil {
		return 0, false, fmt.Errorf("query latest candle: %w", err)
	}
	if ts == nil {
		return 0, false, nil
	}
	return *ts, true, nil
}
