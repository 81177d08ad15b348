package connection

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/quantfeed/binance-data/internal/model"
)

// Errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrStaleConnection    = errors.New("connection stale (no traffic)")
	ErrTimeout            = errors.New("operation timeout")
	ErrAlreadyClosed      = errors.New("already closed")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// StreamKind identifies a feed stream type.
type StreamKind string

const (
	StreamTrade StreamKind = "trade"
	StreamKline StreamKind = "kline"
)

// Subscription is one (symbol, stream kind) pair the session maintains. The
// subscription list is immutable for the session lifetime and replayed in
// full after every reconnect.
type Subscription struct {
	Symbol   string
	Kind     StreamKind
	Interval model.Interval // kline streams only
}

// StreamName returns the exchange stream identifier, e.g. "btcusdt@trade"
// or "btcusdt@kline_1d".
func (s Subscription) StreamName() string {
	sym := strings.ToLower(s.Symbol)
	if s.Kind == StreamKline {
		return sym + "@kline_" + string(s.Interval)
	}
	return sym + "@" + string(s.Kind)
}

// State is the session state. It is owned by the session goroutine and
// transitioned only there.
type State int32

const (
	StateConnecting State = iota
	StateSubscribed
	StateStreaming
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// RawMessage is a message handed downstream to the normalizer.
type RawMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// command is a SUBSCRIBE/UNSUBSCRIBE frame.
type command struct {
	Method string   `json:"method"`
	Params []string `json:"params,omitempty"`
	ID     int64    `json:"id"`
}

// ack is the server's reply to a command. Data frames carry no "id" field,
// which is how acks are told apart.
type ack struct {
	ID     *int64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *ackError       `json:"error"`
}

type ackError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // full WebSocket URL including path
	PingInterval time.Duration // keepalive ping cadence
	ReadTimeout  time.Duration // max time without traffic before the connection is stale
	WriteTimeout time.Duration // write deadline for sends
	BufferSize   int           // message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  90 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   10000,
	}
}

// ManagerConfig configures the stream session Manager.
type ManagerConfig struct {
	WSURL              string        // base WebSocket URL, e.g. wss://stream.binance.com:9443
	ReconnectBaseDelay time.Duration // initial reconnect backoff
	ReconnectMaxDelay  time.Duration // backoff ceiling
	MaxReconnects      int           // consecutive failures before the session dies; 0 = unlimited
	StableResetAfter   time.Duration // healthy streaming time that resets backoff to base
	SubscribeTimeout   time.Duration // timeout for subscribe acks
	PingInterval       time.Duration
	ReadTimeout        time.Duration
	BufferSize         int // output channel buffer size
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  60 * time.Second,
		MaxReconnects:      20,
		StableResetAfter:   2 * time.Minute,
		SubscribeTimeout:   10 * time.Second,
		PingInterval:       30 * time.Second,
		ReadTimeout:        90 * time.Second,
		BufferSize:         10000,
	}
}
