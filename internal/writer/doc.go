// Package writer batches normalized market records and writes them to the
// storage sink. Flushes trigger on batch size or on the age of the oldest
// buffered record, whichever comes first. Failed batches retry with backoff
// and are parked rather than dropped when the sink stays down.
package writer
