package writer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/binance-data/internal/model"
)

func trade(symbol string, id int64) model.MarketRecord {
	return model.MarketRecord{
		Symbol:    symbol,
		Type:      model.RecordTrade,
		EventTime: 1700000000000 + id,
		TradeID:   id,
		Price:     decimal.NewFromInt(100),
		Quantity:  decimal.NewFromInt(1),
	}
}

func candle(symbol string, openTime int64, close string) model.MarketRecord {
	return model.MarketRecord{
		Symbol:    symbol,
		Type:      model.RecordCandle,
		EventTime: openTime,
		Interval:  model.Interval1m,
		Close:     decimal.RequireFromString(close),
	}
}

func TestBufferFlushOnBatchSize(t *testing.T) {
	b := NewBuffer(8)
	now := time.Now()

	for i := int64(0); i < 5; i++ {
		b.Offer(trade("BTCUSDT", i), now)
	}

	if !b.Ready(3, time.Hour, now) {
		t.Fatal("Ready = false, want true with 5 buffered and batch size 3")
	}

	batch := b.Take(3, now)
	if len(batch) != 3 {
		t.Fatalf("Take returned %d records, want 3", len(batch))
	}
	for i, rec := range batch {
		if rec.TradeID != int64(i) {
			t.Errorf("batch[%d].TradeID = %d, want %d (arrival order)", i, rec.TradeID, i)
		}
	}
	if b.Len() != 2 {
		t.Errorf("Len = %d after take, want 2", b.Len())
	}
}

func TestBufferFlushOnAge(t *testing.T) {
	b := NewBuffer(8)
	now := time.Now()

	b.Offer(trade("BTCUSDT", 1), now)

	if b.Ready(100, time.Second, now) {
		t.Error("Ready = true for a fresh record under batch size")
	}
	if !b.Ready(100, time.Second, now.Add(2*time.Second)) {
		t.Error("Ready = false once the oldest record aged past the interval")
	}
}

func TestBufferEmptyNeverReady(t *testing.T) {
	b := NewBuffer(8)
	if b.Ready(1, 0, time.Now()) {
		t.Error("Ready = true on an empty buffer")
	}
	if got := b.Take(10, time.Now()); got != nil {
		t.Errorf("Take on empty buffer = %v, want nil", got)
	}
}

func TestBufferCoalescesCandles(t *testing.T) {
	b := NewBuffer(8)
	now := time.Now()

	b.Offer(candle("BTCUSDT", 1700000000000, "100.5"), now)
	b.Offer(trade("BTCUSDT", 1), now)
	b.Offer(candle("BTCUSDT", 1700000000000, "101.7"), now)

	if b.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (candle update coalesced)", b.Len())
	}

	batch := b.Take(0, now)
	if got := batch[0].Close.String(); got != "101.7" {
		t.Errorf("coalesced candle Close = %s, want the later update 101.7", got)
	}
	if batch[1].Type != model.RecordTrade {
		t.Errorf("batch[1].Type = %q, want trade kept separately", batch[1].Type)
	}
}

func TestBufferDistinctBucketsNotCoalesced(t *testing.T) {
	b := NewBuffer(8)
	now := time.Now()

	b.Offer(candle("BTCUSDT", 1700000000000, "1"), now)
	b.Offer(candle("BTCUSDT", 1700000060000, "2"), now)
	b.Offer(candle("ETHUSDT", 1700000000000, "3"), now)

	if b.Len() != 3 {
		t.Errorf("Len = %d, want 3 distinct candle keys", b.Len())
	}
}

func TestBufferReindexAfterPartialTake(t *testing.T) {
	b := NewBuffer(8)
	now := time.Now()

	b.Offer(candle("BTCUSDT", 1700000000000, "1"), now)
	b.Offer(candle("BTCUSDT", 1700000060000, "2"), now)
	b.Take(1, now)

	// The remaining candle must still coalesce under its key.
	b.Offer(candle("BTCUSDT", 1700000060000, "9"), now)
	if b.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after coalescing the surviving candle", b.Len())
	}
	batch := b.Take(0, now)
	if got := batch[0].Close.String(); got != "9" {
		t.Errorf("Close = %s, want 9", got)
	}
}
