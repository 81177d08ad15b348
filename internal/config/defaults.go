package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL            = "https://api.binance.com"
	DefaultWSURL              = "wss://stream.binance.com:9443"
	DefaultAPITimeout         = 30 * time.Second
	DefaultMaxRetries         = 5
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultMaxReconnects      = 20
	DefaultStableResetAfter   = 2 * time.Minute
	DefaultPingInterval       = 30 * time.Second
	DefaultReadTimeout        = 90 * time.Second
	DefaultSubscribeTimeout   = 10 * time.Second
	DefaultStreamBufferSize   = 10000
	DefaultBatchSize          = 1000
	DefaultFlushInterval      = 1 * time.Second
	DefaultFlushRetries       = 5
	DefaultFlushBackoff       = 500 * time.Millisecond
	DefaultReconcileInterval  = 15 * time.Minute
	DefaultReconcileWorkers   = 4
	DefaultReconcileLookback  = 24 * time.Hour
)

func (c *ServiceConfig) applyDefaults() {
	// Exchange defaults
	if c.Exchange.RestURL == "" {
		c.Exchange.RestURL = DefaultRestURL
	}
	if c.Exchange.WSURL == "" {
		c.Exchange.WSURL = DefaultWSURL
	}
	if c.Exchange.Timeout == 0 {
		c.Exchange.Timeout = DefaultAPITimeout
	}
	if c.Exchange.MaxRetries == 0 {
		c.Exchange.MaxRetries = DefaultMaxRetries
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Stream defaults
	if c.Stream.ReconnectBaseDelay == 0 {
		c.Stream.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Stream.ReconnectMaxDelay == 0 {
		c.Stream.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Stream.MaxReconnects == 0 {
		c.Stream.MaxReconnects = DefaultMaxReconnects
	}
	if c.Stream.StableResetAfter == 0 {
		c.Stream.StableResetAfter = DefaultStableResetAfter
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.ReadTimeout == 0 {
		c.Stream.ReadTimeout = DefaultReadTimeout
	}
	if c.Stream.SubscribeTimeout == 0 {
		c.Stream.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBufferSize
	}

	// Writer defaults
	if c.Writer.BatchSize == 0 {
		c.Writer.BatchSize = DefaultBatchSize
	}
	if c.Writer.FlushInterval == 0 {
		c.Writer.FlushInterval = DefaultFlushInterval
	}
	if c.Writer.FlushRetries == 0 {
		c.Writer.FlushRetries = DefaultFlushRetries
	}
	if c.Writer.FlushBackoff == 0 {
		c.Writer.FlushBackoff = DefaultFlushBackoff
	}

	// Reconciler defaults
	if c.Reconciler.Interval == 0 {
		c.Reconciler.Interval = DefaultReconcileInterval
	}
	if c.Reconciler.Concurrency == 0 {
		c.Reconciler.Concurrency = DefaultReconcileWorkers
	}
	if c.Reconciler.Lookback == 0 {
		c.Reconciler.Lookback = DefaultReconcileLookback
	}
}
