package writer

import (
	"time"

	"github.com/quantfeed/binance-data/internal/model"
)

// Buffer accumulates records between flushes. Candle updates for the same
// (symbol, interval, open_time) coalesce in place so a flush carries at most
// one row per open bucket; trades are never coalesced. Not safe for
// concurrent use; the owning Writer serializes access.
type Buffer struct {
	records []model.MarketRecord
	index   map[model.RecordKey]int
	oldest  time.Time
}

// NewBuffer creates an empty buffer with capacity hint n.
func NewBuffer(n int) *Buffer {
	return &Buffer{
		records: make([]model.MarketRecord, 0, n),
		index:   make(map[model.RecordKey]int, n),
	}
}

// Offer adds a record. A candle whose key is already buffered replaces the
// earlier version in place and keeps its arrival position.
func (b *Buffer) Offer(rec model.MarketRecord, now time.Time) {
	if rec.Type == model.RecordCandle {
		if i, ok := b.index[rec.Key()]; ok {
			b.records[i] = rec
			return
		}
	}
	if len(b.records) == 0 {
		b.oldest = now
	}
	b.records = append(b.records, rec)
	if rec.Type == model.RecordCandle {
		b.index[rec.Key()] = len(b.records) - 1
	}
}

// Len reports the number of buffered records.
func (b *Buffer) Len() int { return len(b.records) }

// Ready reports whether the buffer should flush: it holds at least batchSize
// records, or the oldest record has been waiting at least maxAge.
func (b *Buffer) Ready(batchSize int, maxAge time.Duration, now time.Time) bool {
	if len(b.records) == 0 {
		return false
	}
	if len(b.records) >= batchSize {
		return true
	}
	return now.Sub(b.oldest) >= maxAge
}

// Take removes and returns up to batchSize records in arrival order. A
// batchSize <= 0 drains the whole buffer. Records left behind restart the
// age clock at now.
func (b *Buffer) Take(batchSize int, now time.Time) []model.MarketRecord {
	n := len(b.records)
	if n == 0 {
		return nil
	}
	if batchSize > 0 && batchSize < n {
		n = batchSize
	}

	out := make([]model.MarketRecord, n)
	copy(out, b.records[:n])
	b.records = append(b.records[:0], b.records[n:]...)
	b.oldest = now

	// Reindex the remainder.
	clear(b.index)
	for i, rec := range b.records {
		if rec.Type == model.RecordCandle {
			b.index[rec.Key()] = i
		}
	}
	return out
}
