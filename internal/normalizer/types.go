package normalizer

import "encoding/json"

// envelope distinguishes combined-stream wrappers, direct events, and
// control frames.
type envelope struct {
	// Combined stream wrapper: {"stream":"btcusdt@trade","data":{...}}
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`

	// Direct event tag. EventTime must be declared alongside it: without an
	// exact match for "E", encoding/json folds the event-time number into
	// the case-insensitively matching "e" field and the decode fails.
	Event     string `json:"e"`
	EventTime int64  `json:"E"`

	// Command acks carry an id and nothing else of interest.
	ID *int64 `json:"id"`
}

// tradeEvent is the wire format of a trade stream event.
type tradeEvent struct {
	Event      string `json:"e"`
	EventTime  int64  `json:"E"`
	Symbol     string `json:"s"`
	TradeID    int64  `json:"t"`
	Price      string `json:"p"`
	Quantity   string `json:"q"`
	TradeTime  int64  `json:"T"`
	BuyerMaker bool   `json:"m"`
}

// klineEvent is the wire format of a kline stream event. The candle itself
// is nested under "k".
type klineEvent struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime    int64  `json:"t"`
		CloseTime   int64  `json:"T"`
		Symbol      string `json:"s"`
		Interval    string `json:"i"`
		Open        string `json:"o"`
		Close       string `json:"c"`
		High        string `json:"h"`
		Low         string `json:"l"`
		Volume      string `json:"v"`
		TradeCount  int64  `json:"n"`
		Closed      bool   `json:"x"`
		QuoteVolume string `json:"q"`
	} `json:"k"`
}
