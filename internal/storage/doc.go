// Package storage implements the Storage Sink: idempotent bulk upserts of
// market records plus the coverage queries the reconciler reads.
//
// Identity: candles upsert on (symbol, interval, open_time) and a closed
// candle is never overwritten by a live one; trades insert on
// (symbol, trade_id) with conflicts ignored. Each bulk write runs inside a
// single transaction, so the streaming and reconciliation paths can write
// concurrently without interleaving partial batches.
package storage
