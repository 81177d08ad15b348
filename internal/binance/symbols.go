package binance

import (
	"context"
	"fmt"
	"strings"
)

// ResolveSymbols returns the explicit comma-separated list when given,
// upper-cased, otherwise discovers every TRADING symbol quoted in quoteAsset.
func ResolveSymbols(ctx context.Context, c *Client, explicit, quoteAsset string) ([]string, error) {
	if explicit != "" {
		var out []string
		for _, s := range strings.Split(explicit, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, strings.ToUpper(s))
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("empty symbol list %q", explicit)
		}
		return out, nil
	}

	infos, err := c.GetTradingSymbols(ctx, quoteAsset)
	if err != nil {
		return nil, fmt.Errorf("discovering %s symbols: %w", quoteAsset, err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("no trading symbols quoted in %s", quoteAsset)
	}
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Symbol)
	}
	return out, nil
}
