package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/binance-data/internal/connection"
	"github.com/quantfeed/binance-data/internal/model"
)

// ErrSkip marks a message that carries no market data (command acks, unknown
// event kinds). It is not an error condition; callers drop the message.
var ErrSkip = errors.New("skip message")

// ParseError is a malformed payload of a known kind. The caller logs it and
// the stream continues.
type ParseError struct {
	Kind  string
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s message: field %s: %v", e.Kind, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Normalizer converts raw feed payloads into canonical MarketRecords.
type Normalizer struct {
	logger *slog.Logger
}

// New creates a Normalizer.
func New(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize parses a raw feed message. It returns ErrSkip for control frames
// and unknown kinds, a *ParseError for malformed payloads of a known kind,
// and a record otherwise.
func (n *Normalizer) Normalize(raw connection.RawMessage) (model.MarketRecord, error) {
	var env envelope
	if err := json.Unmarshal(raw.Data, &env); err != nil {
		return model.MarketRecord{}, &ParseError{Kind: "envelope", Field: "-", Err: err}
	}

	payload := raw.Data
	kind := env.Event
	if env.Stream != "" && len(env.Data) > 0 {
		// Combined-stream wrapper; classify the inner event.
		payload = env.Data
		var inner envelope
		if err := json.Unmarshal(payload, &inner); err != nil {
			return model.MarketRecord{}, &ParseError{Kind: "envelope", Field: "data", Err: err}
		}
		kind = inner.Event
	}

	if env.ID != nil {
		// Command ack; not market data.
		return model.MarketRecord{}, ErrSkip
	}

	ingestTime := raw.ReceivedAt.UnixMilli()

	switch kind {
	case "trade":
		return n.normalizeTrade(payload, ingestTime)
	case "kline":
		return n.normalizeKline(payload, ingestTime)
	default:
		n.logger.Debug("skipping message kind", "kind", kind)
		return model.MarketRecord{}, ErrSkip
	}
}

func (n *Normalizer) normalizeTrade(payload []byte, ingestTime int64) (model.MarketRecord, error) {
	var ev tradeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return model.MarketRecord{}, &ParseError{Kind: "trade", Field: "-", Err: err}
	}

	if ev.Symbol == "" {
		return model.MarketRecord{}, &ParseError{Kind: "trade", Field: "s", Err: errors.New("empty symbol")}
	}
	if ev.TradeTime == 0 {
		return model.MarketRecord{}, &ParseError{Kind: "trade", Field: "T", Err: errors.New("missing trade time")}
	}

	price, err := decimal.NewFromString(ev.Price)
	if err != nil {
		return model.MarketRecord{}, &ParseError{Kind: "trade", Field: "p", Err: err}
	}
	quantity, err := decimal.NewFromString(ev.Quantity)
	if err != nil {
		return model.MarketRecord{}, &ParseError{Kind: "trade", Field: "q", Err: err}
	}

	return model.MarketRecord{
		Symbol:     ev.Symbol,
		Type:       model.RecordTrade,
		EventTime:  ev.TradeTime,
		IngestTime: ingestTime,
		TradeID:    ev.TradeID,
		Price:      price,
		Quantity:   quantity,
		BuyerMaker: ev.BuyerMaker,
	}, nil
}

func (n *Normalizer) normalizeKline(payload []byte, ingestTime int64) (model.MarketRecord, error) {
	var ev klineEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return model.MarketRecord{}, &ParseError{Kind: "kline", Field: "-", Err: err}
	}

	if ev.Symbol == "" {
		return model.MarketRecord{}, &ParseError{Kind: "kline", Field: "s", Err: errors.New("empty symbol")}
	}
	if ev.Kline.OpenTime == 0 {
		return model.MarketRecord{}, &ParseError{Kind: "kline", Field: "k.t", Err: errors.New("missing open time")}
	}

	interval, err := model.ParseInterval(ev.Kline.Interval)
	if err != nil {
		return model.MarketRecord{}, &ParseError{Kind: "kline", Field: "k.i", Err: err}
	}

	rec := model.MarketRecord{
		Symbol:     ev.Symbol,
		Type:       model.RecordCandle,
		EventTime:  ev.Kline.OpenTime,
		IngestTime: ingestTime,
		Interval:   interval,
		TradeCount: ev.Kline.TradeCount,
		CloseTime:  ev.Kline.CloseTime,
		Closed:     ev.Kline.Closed,
	}

	fields := []struct {
		name string
		src  string
		dst  *decimal.Decimal
	}{
		{"k.o", ev.Kline.Open, &rec.Open},
		{"k.h", ev.Kline.High, &rec.High},
		{"k.l", ev.Kline.Low, &rec.Low},
		{"k.c", ev.Kline.Close, &rec.Close},
		{"k.v", ev.Kline.Volume, &rec.Volume},
		{"k.q", ev.Kline.QuoteVolume, &rec.QuoteVolume},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return model.MarketRecord{}, &ParseError{Kind: "kline", Field: f.name, Err: err}
		}
		*f.dst = d
	}

	return rec, nil
}
