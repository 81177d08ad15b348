// Package reconciler audits stored candle coverage against exchange history
// and backfills missing buckets. Because every write goes through the same
// idempotent sink as the live stream, a reconciliation pass over already
// complete data is a no-op.
package reconciler
