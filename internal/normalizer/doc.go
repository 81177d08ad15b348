// Package normalizer converts raw websocket payloads into canonical
// MarketRecords. It accepts both direct-stream events and combined-stream
// envelopes, skips control frames, and reports malformed payloads without
// stopping the stream.
package normalizer
