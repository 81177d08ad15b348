package config

import "time"

// ServiceConfig is the root configuration shared by the bootstrap, ingester,
// and reconcile binaries.
type ServiceConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Database   DBConfig         `yaml:"database"`
	Stream     StreamConfig     `yaml:"stream"`
	Writer     WriterConfig     `yaml:"writer"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
}

// InstanceConfig identifies this ingester instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ExchangeConfig holds Binance endpoint settings.
type ExchangeConfig struct {
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// DBConfig holds the storage sink connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// StreamConfig holds WebSocket session settings.
type StreamConfig struct {
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnects      int           `yaml:"max_reconnects"`
	StableResetAfter   time.Duration `yaml:"stable_reset_after"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	SubscribeTimeout   time.Duration `yaml:"subscribe_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
}

// WriterConfig holds batch writer settings.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	FlushRetries  int           `yaml:"flush_retries"`
	FlushBackoff  time.Duration `yaml:"flush_backoff"`
}

// ReconcilerConfig holds gap reconciliation settings.
type ReconcilerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Lookback    time.Duration `yaml:"lookback"`
}
