package binance

import (
	"context"
	"fmt"
)

// GetTradingSymbols returns the symbols currently open for trading, filtered
// to the given quote asset when non-empty.
func (c *Client) GetTradingSymbols(ctx context.Context, quoteAsset string) ([]SymbolInfo, error) {
	var resp exchangeInfoResponse
	if err := c.get(ctx, "/api/v3/exchangeInfo", nil, &resp); err != nil {
		return nil, fmt.Errorf("get exchange info: %w", err)
	}

	var symbols []SymbolInfo
	for _, s := range resp.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		if quoteAsset != "" && s.QuoteAsset != quoteAsset {
			continue
		}
		symbols = append(symbols, s)
	}

	return symbols, nil
}
