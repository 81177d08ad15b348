package binance

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kline is one candlestick returned by GET /api/v3/klines. The wire format
// is a positional JSON array; numeric fields arrive as strings to preserve
// exchange precision.
type Kline struct {
	OpenTime         int64
	Open             decimal.Decimal
	High             decimal.Decimal
	Low              decimal.Decimal
	Close            decimal.Decimal
	Volume           decimal.Decimal
	CloseTime        int64
	QuoteAssetVolume decimal.Decimal
	TradeCount       int64
}

// UnmarshalJSON decodes the positional kline array.
func (k *Kline) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 9 {
		return fmt.Errorf("kline array has %d elements, want >= 9", len(raw))
	}

	if err := json.Unmarshal(raw[0], &k.OpenTime); err != nil {
		return fmt.Errorf("kline open time: %w", err)
	}
	if err := json.Unmarshal(raw[6], &k.CloseTime); err != nil {
		return fmt.Errorf("kline close time: %w", err)
	}
	if err := json.Unmarshal(raw[8], &k.TradeCount); err != nil {
		return fmt.Errorf("kline trade count: %w", err)
	}

	fields := []struct {
		idx int
		dst *decimal.Decimal
	}{
		{1, &k.Open},
		{2, &k.High},
		{3, &k.Low},
		{4, &k.Close},
		{5, &k.Volume},
		{7, &k.QuoteAssetVolume},
	}
	for _, f := range fields {
		var s string
		if err := json.Unmarshal(raw[f.idx], &s); err != nil {
			return fmt.Errorf("kline field %d: %w", f.idx, err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("kline field %d: %w", f.idx, err)
		}
		*f.dst = d
	}

	return nil
}

// SymbolInfo describes one tradeable pair from GET /api/v3/exchangeInfo.
type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// exchangeInfoResponse from GET /api/v3/exchangeInfo.
type exchangeInfoResponse struct {
	Symbols []SymbolInfo `json:"symbols"`
}
