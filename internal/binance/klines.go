package binance

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/quantfeed/binance-data/internal/model"
)

// MaxKlinesPerCall is the exchange's per-request record limit.
const MaxKlinesPerCall = 1000

// FetchError indicates a historical fetch exhausted its retries. The range
// that failed is carried so the reconciler can report it.
type FetchError struct {
	Symbol   string
	Interval model.Interval
	Start    int64
	End      int64
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s [%d, %d): %v", e.Symbol, e.Interval, e.Start, e.End, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// KlinesQuery parameterizes a single klines page request.
type KlinesQuery struct {
	Symbol    string
	Interval  model.Interval
	StartTime int64 // ms, inclusive
	EndTime   int64 // ms, exclusive; 0 = no bound
	Limit     int   // 0 = exchange default
}

// GetKlines fetches a single page of candles.
func (c *Client) GetKlines(ctx context.Context, q KlinesQuery) ([]Kline, error) {
	query := url.Values{}
	query.Set("symbol", q.Symbol)
	query.Set("interval", string(q.Interval))
	query.Set("startTime", strconv.FormatInt(q.StartTime, 10))
	if q.EndTime > 0 {
		// The endpoint's endTime is inclusive; our ranges are half-open.
		query.Set("endTime", strconv.FormatInt(q.EndTime-1, 10))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}

	var klines []Kline
	if err := c.get(ctx, "/api/v3/klines", query, &klines); err != nil {
		return nil, fmt.Errorf("get klines: %w", err)
	}

	return klines, nil
}

// FetchKlines pulls the full [start, end) range, paging past the per-call
// limit. Records come back in strictly ascending open-time order with no
// duplicates. Buckets that are still open at call time are excluded, so
// every returned candle is final. Errors after retries are wrapped in a
// FetchError rather than returning a silently truncated result.
func (c *Client) FetchKlines(ctx context.Context, symbol string, interval model.Interval, start, end int64) ([]model.MarketRecord, error) {
	var records []model.MarketRecord
	cursor := interval.Truncate(start)
	step := interval.Millis()

	for cursor < end {
		page, err := c.GetKlines(ctx, KlinesQuery{
			Symbol:    symbol,
			Interval:  interval,
			StartTime: cursor,
			EndTime:   end,
			Limit:     MaxKlinesPerCall,
		})
		if err != nil {
			return nil, &FetchError{Symbol: symbol, Interval: interval, Start: cursor, End: end, Err: err}
		}
		if len(page) == 0 {
			break
		}

		now := time.Now().UnixMilli()
		for _, k := range page {
			if k.OpenTime >= end {
				break
			}
			if k.CloseTime >= now {
				// Still-forming bucket; the live stream or a later pass
				// delivers its final value.
				continue
			}
			records = append(records, klineToRecord(symbol, interval, k, now))
		}

		next := page[len(page)-1].OpenTime + step
		if next <= cursor {
			break
		}
		cursor = next

		if len(page) < MaxKlinesPerCall {
			break
		}
	}

	c.logger.Debug("fetched klines",
		"symbol", symbol,
		"interval", interval,
		"start", start,
		"end", end,
		"records", len(records),
	)

	return records, nil
}

// EarliestKlineTime returns the open time of the first candle the exchange
// has for (symbol, interval).
func (c *Client) EarliestKlineTime(ctx context.Context, symbol string, interval model.Interval) (int64, error) {
	page, err := c.GetKlines(ctx, KlinesQuery{
		Symbol:    symbol,
		Interval:  interval,
		StartTime: 0,
		Limit:     1,
	})
	if err != nil {
		return 0, fmt.Errorf("earliest kline for %s: %w", symbol, err)
	}
	if len(page) == 0 {
		return 0, fmt.Errorf("earliest kline for %s: no data", symbol)
	}
	return page[0].OpenTime, nil
}

// klineToRecord converts a REST kline to the canonical record. The payload
// matches what the normalizer produces for the same closed bucket.
func klineToRecord(symbol string, interval model.Interval, k Kline, ingestTime int64) model.MarketRecord {
	return model.MarketRecord{
		Symbol:      symbol,
		Type:        model.RecordCandle,
		Interval:    interval,
		EventTime:   k.OpenTime,
		IngestTime:  ingestTime,
		Open:        k.Open,
		High:        k.High,
		Low:         k.Low,
		Close:       k.Close,
		Volume:      k.Volume,
		QuoteVolume: k.QuoteAssetVolume,
		TradeCount:  k.TradeCount,
		CloseTime:   k.CloseTime,
		Closed:      true,
	}
}
