package normalizer

import (
	"errors"
	"testing"
	"time"

	"github.com/quantfeed/binance-data/internal/connection"
	"github.com/quantfeed/binance-data/internal/model"
)

const tradePayload = `{
	"e": "trade",
	"E": 1700000000123,
	"s": "BTCUSDT",
	"t": 987654321,
	"p": "43210.55000000",
	"q": "0.00125000",
	"T": 1700000000120,
	"m": true
}`

const klinePayload = `{
	"e": "kline",
	"E": 1700000060001,
	"s": "ETHUSDT",
	"k": {
		"t": 1700000000000,
		"T": 1700000059999,
		"s": "ETHUSDT",
		"i": "1m",
		"o": "2280.10000000",
		"c": "2281.45000000",
		"h": "2282.00000000",
		"l": "2279.99000000",
		"v": "153.20710000",
		"n": 412,
		"x": true,
		"q": "349512.88215000"
	}
}`

func rawMsg(payload string) connection.RawMessage {
	return connection.RawMessage{
		Data:       []byte(payload),
		ReceivedAt: time.UnixMilli(1700000000500),
	}
}

func TestNormalizeTrade(t *testing.T) {
	n := New(nil)

	rec, err := n.Normalize(rawMsg(tradePayload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if rec.Type != model.RecordTrade {
		t.Errorf("Type = %q, want %q", rec.Type, model.RecordTrade)
	}
	if rec.Symbol != "BTCUSDT" {
		t.Errorf("Symbol = %q, want BTCUSDT", rec.Symbol)
	}
	if rec.EventTime != 1700000000120 {
		t.Errorf("EventTime = %d, want trade time 1700000000120", rec.EventTime)
	}
	if rec.IngestTime != 1700000000500 {
		t.Errorf("IngestTime = %d, want 1700000000500", rec.IngestTime)
	}
	if rec.TradeID != 987654321 {
		t.Errorf("TradeID = %d, want 987654321", rec.TradeID)
	}
	if got := rec.Price.String(); got != "43210.55" {
		t.Errorf("Price = %s, want 43210.55", got)
	}
	if got := rec.Quantity.String(); got != "0.00125" {
		t.Errorf("Quantity = %s, want 0.00125", got)
	}
	if !rec.BuyerMaker {
		t.Error("BuyerMaker = false, want true")
	}
}

func TestNormalizeKline(t *testing.T) {
	n := New(nil)

	rec, err := n.Normalize(rawMsg(klinePayload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if rec.Type != model.RecordCandle {
		t.Errorf("Type = %q, want %q", rec.Type, model.RecordCandle)
	}
	if rec.Symbol != "ETHUSDT" {
		t.Errorf("Symbol = %q, want ETHUSDT", rec.Symbol)
	}
	if rec.EventTime != 1700000000000 {
		t.Errorf("EventTime = %d, want bucket open time", rec.EventTime)
	}
	if rec.Interval != model.Interval1m {
		t.Errorf("Interval = %q, want 1m", rec.Interval)
	}
	if rec.CloseTime != 1700000059999 {
		t.Errorf("CloseTime = %d, want 1700000059999", rec.CloseTime)
	}
	if !rec.Closed {
		t.Error("Closed = false, want true")
	}
	if rec.TradeCount != 412 {
		t.Errorf("TradeCount = %d, want 412", rec.TradeCount)
	}
	if got := rec.Open.String(); got != "2280.1" {
		t.Errorf("Open = %s, want 2280.1", got)
	}
	if got := rec.QuoteVolume.String(); got != "349512.88215" {
		t.Errorf("QuoteVolume = %s, want 349512.88215", got)
	}
}

func TestNormalizeCombinedEnvelope(t *testing.T) {
	n := New(nil)

	combined := `{"stream":"btcusdt@trade","data":` + tradePayload + `}`
	rec, err := n.Normalize(rawMsg(combined))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.Type != model.RecordTrade || rec.TradeID != 987654321 {
		t.Errorf("got %+v, want inner trade event", rec)
	}
}

func TestNormalizeEnvelopeKeysAreCaseSensitive(t *testing.T) {
	// "e" (event kind) and "E" (event time) are distinct wire keys; the
	// numeric "E" must not be folded into the string "e" during decoding.
	n := New(nil)

	payload := `{"E":1700000000123,"e":"trade","s":"BTCUSDT","t":7,"p":"1.0","q":"2.0","T":1700000000120,"m":false}`
	rec, err := n.Normalize(rawMsg(payload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.Type != model.RecordTrade || rec.TradeID != 7 {
		t.Errorf("got %+v, want trade 7", rec)
	}
}

func TestNormalizeSkipsControlFrames(t *testing.T) {
	n := New(nil)

	for _, payload := range []string{
		`{"result":null,"id":7}`,
		`{"e":"24hrTicker","s":"BTCUSDT"}`,
	} {
		_, err := n.Normalize(rawMsg(payload))
		if !errors.Is(err, ErrSkip) {
			t.Errorf("Normalize(%s) err = %v, want ErrSkip", payload, err)
		}
	}
}

func TestNormalizeMalformed(t *testing.T) {
	n := New(nil)

	cases := []struct {
		name    string
		payload string
		field   string
	}{
		{"bad price", `{"e":"trade","s":"BTCUSDT","t":1,"p":"not-a-number","q":"1","T":5}`, "p"},
		{"empty symbol", `{"e":"trade","t":1,"p":"1","q":"1","T":5}`, "s"},
		{"missing trade time", `{"e":"trade","s":"BTCUSDT","t":1,"p":"1","q":"1"}`, "T"},
		{"unknown interval", `{"e":"kline","s":"BTCUSDT","k":{"t":1,"i":"7m","o":"1","c":"1","h":"1","l":"1","v":"0","q":"0"}}`, "k.i"},
		{"missing open time", `{"e":"kline","s":"BTCUSDT","k":{"i":"1m","o":"1","c":"1","h":"1","l":"1","v":"0","q":"0"}}`, "k.t"},
		{"not json", `{`, "-"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := n.Normalize(rawMsg(tc.payload))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *ParseError", err)
			}
			if pe.Field != tc.field {
				t.Errorf("Field = %q, want %q", pe.Field, tc.field)
			}
		})
	}
}

func TestNormalizePreservesPrecision(t *testing.T) {
	n := New(nil)

	payload := `{"e":"trade","s":"SHIBUSDT","t":2,"p":"0.00000812","q":"123456789.00000000","T":9}`
	rec, err := n.Normalize(rawMsg(payload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got := rec.Price.String(); got != "0.00000812" {
		t.Errorf("Price = %s, want 0.00000812", got)
	}
	if got := rec.Quantity.String(); got != "123456789" {
		t.Errorf("Quantity = %s, want 123456789", got)
	}
}
