// Package connection implements the Feed Client: one persistent WebSocket
// session to the exchange's stream endpoint.
//
// The Manager:
//   - holds an immutable subscription list for the session lifetime
//   - subscribes via SUBSCRIBE frames with id-correlated acks
//   - reconnects with exponential backoff on any transport failure and
//     replays every subscription from scratch
//   - never drops a message it already dequeued from the transport
package connection
