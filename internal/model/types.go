package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RecordType identifies the kind of a MarketRecord. The set is closed:
// downstream switches cover every member, new feed kinds are added here.
type RecordType string

const (
	RecordTrade  RecordType = "trade"
	RecordCandle RecordType = "candle"
)

// Interval is a candle bucket width in Binance notation ("1m", "1h", "1d").
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

var intervalDurations = map[Interval]time.Duration{
	Interval1m:  time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval1h:  time.Hour,
	Interval4h:  4 * time.Hour,
	Interval1d:  24 * time.Hour,
}

// ParseInterval validates an interval string.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if _, ok := intervalDurations[iv]; !ok {
		return "", fmt.Errorf("unknown interval %q", s)
	}
	return iv, nil
}

// Duration returns the bucket width. Panics on an interval that did not
// come from ParseInterval.
func (iv Interval) Duration() time.Duration {
	d, ok := intervalDurations[iv]
	if !ok {
		panic(fmt.Sprintf("model: invalid interval %q", string(iv)))
	}
	return d
}

// Millis returns the bucket width in milliseconds.
func (iv Interval) Millis() int64 {
	return iv.Duration().Milliseconds()
}

// Truncate rounds a millisecond timestamp down to its bucket open time.
func (iv Interval) Truncate(ms int64) int64 {
	step := iv.Millis()
	return ms - ms%step
}

// Next returns the open time of the bucket after the one containing ms.
func (iv Interval) Next(ms int64) int64 {
	return iv.Truncate(ms) + iv.Millis()
}

// RecordKey uniquely identifies a stored record. Re-ingesting the same key
// is an idempotent overwrite, never a duplicate row.
type RecordKey struct {
	Symbol    string
	Type      RecordType
	Interval  Interval // empty for trades
	EventTime int64    // ms since epoch, UTC
}

// MarketRecord is the canonical unit of storage for both trades and candles.
// EventTime is the exchange-reported timestamp and the authoritative ordering
// key; IngestTime is the local receive time and is used only for diagnostics.
type MarketRecord struct {
	Symbol     string
	Type       RecordType
	EventTime  int64 // ms since epoch, UTC
	IngestTime int64 // ms since epoch, local receive time

	// Candle fields. EventTime is the bucket open time.
	Interval    Interval
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
	QuoteVolume decimal.Decimal
	TradeCount  int64
	CloseTime   int64 // ms, bucket close time
	Closed      bool  // bucket has finished; values are final

	// Trade fields.
	TradeID    int64
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	BuyerMaker bool // true = buyer was the maker (sell-side aggression)
}

// Key returns the identity of the record.
func (r MarketRecord) Key() RecordKey {
	k := RecordKey{
		Symbol:    r.Symbol,
		Type:      r.Type,
		EventTime: r.EventTime,
	}
	if r.Type == RecordCandle {
		k.Interval = r.Interval
	}
	return k
}
