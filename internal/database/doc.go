// Package database provides connection pool management for the storage sink.
//
// Time-series data (candles, trades) lives in a single PostgreSQL/TimescaleDB
// database; both the streaming writer and the reconciler share one pool.
package database
