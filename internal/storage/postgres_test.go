package storage

import (
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/quantfeed/binance-data/internal/model"
)

func TestQueueRecord(t *testing.T) {
	batch := &pgx.Batch{}

	candle := model.MarketRecord{
		Symbol:    "BTCUSDT",
		Type:      model.RecordCandle,
		Interval:  model.Interval1m,
		EventTime: 1700000000000,
		Open:      decimal.RequireFromString("43210.55"),
		Closed:    true,
	}
	trade := model.MarketRecord{
		Symbol:    "BTCUSDT",
		Type:      model.RecordTrade,
		EventTime: 1700000000123,
		TradeID:   42,
		Price:     decimal.RequireFromString("43210.55"),
		Quantity:  decimal.RequireFromString("0.001"),
	}

	if err := queueRecord(batch, candle); err != nil {
		t.Fatalf("queueRecord(candle): %v", err)
	}
	if err := queueRecord(batch, trade); err != nil {
		t.Fatalf("queueRecord(trade): %v", err)
	}

	if batch.Len() != 2 {
		t.Fatalf("batch.Len() = %d, want 2", batch.Len())
	}

	candleQ := batch.QueuedQueries[0]
	if !strings.Contains(candleQ.SQL, "INSERT INTO candles") {
		t.Errorf("candle SQL = %q, want candles insert", candleQ.SQL)
	}
	if !strings.Contains(candleQ.SQL, "WHERE NOT candles.closed") {
		t.Error("candle upsert is missing the closed-row guard")
	}
	if len(candleQ.Arguments) != 13 {
		t.Errorf("candle args = %d, want 13", len(candleQ.Arguments))
	}

	tradeQ := batch.QueuedQueries[1]
	if !strings.Contains(tradeQ.SQL, "INSERT INTO trades") {
		t.Errorf("trade SQL = %q, want trades insert", tradeQ.SQL)
	}
	if !strings.Contains(tradeQ.SQL, "ON CONFLICT (symbol, trade_id) DO NOTHING") {
		t.Error("trade insert is missing the do-nothing conflict clause")
	}
	if len(tradeQ.Arguments) != 7 {
		t.Errorf("trade args = %d, want 7", len(tradeQ.Arguments))
	}
}

func TestQueueRecordUnknownType(t *testing.T) {
	batch := &pgx.Batch{}
	err := queueRecord(batch, model.MarketRecord{Symbol: "BTCUSDT", Type: "snapshot"})
	if err == nil {
		t.Fatal("queueRecord accepted an unknown record type")
	}
	if batch.Len() != 0 {
		t.Errorf("batch.Len() = %d after rejected record, want 0", batch.Len())
	}
}
