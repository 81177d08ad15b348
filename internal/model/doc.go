// Package model defines the canonical data types shared across the pipeline.
//
// MarketRecord is the single storage unit for both trades and candles.
// Timestamps are milliseconds since epoch (UTC), matching the exchange's
// native precision. Prices and quantities are decimal values parsed from the
// exchange's string representation; float64 is never used for money.
package model
