package reconciler

import "github.com/quantfeed/binance-data/internal/model"

// Range is a half-open span of candle buckets [Start, End) in ms.
type Range struct {
	Start int64
	End   int64
}

// Buckets returns how many buckets of the given interval the range spans.
func (r Range) Buckets(interval model.Interval) int64 {
	return (r.End - r.Start) / interval.Millis()
}

// MissingRanges walks every expected bucket open time in [start, end) and
// returns the ones absent from stored, folded into contiguous ranges ordered
// by start time. start and end must be bucket-aligned.
func MissingRanges(interval model.Interval, start, end int64, stored map[int64]struct{}) []Range {
	step := interval.Millis()
	var out []Range
	for t := start; t < end; t += step {
		if _, ok := stored[t]; ok {
			continue
		}
		if n := len(out); n > 0 && out[n-1].End == t {
			out[n-1].End = t + step
			continue
		}
		out = append(out, Range{Start: t, End: t + step})
	}
	return out
}
