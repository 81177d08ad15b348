// Package binance implements the request/response side of the exchange:
// paged historical kline fetches (the Historical Fetcher), exchange metadata,
// and the earliest-data lookup used for bootstrap.
//
// Rate-limit responses (429/418) are retried with jittered exponential
// backoff, honoring the server's Retry-After hint.
package binance
