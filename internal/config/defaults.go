package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID        = "market-stream"
	DefaultServerAddr        = ":8000"
	DefaultWSPath            = "/ws/market-data"
	DefaultReadLimit         = 64 * 1024
	DefaultWriteTimeout      = 5 * time.Second
	DefaultPongWait          = 60 * time.Second
	DefaultSendBuffer        = 256
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultPollInterval      = 1 * time.Second
	DefaultErrorBackoff      = 5 * time.Second
	DefaultFetchTimeout      = 10 * time.Second
	DefaultHeartbeatSchedule = "@every 30s"
	DefaultQuotesBaseURL     = "https://query1.finance.yahoo.com"
	DefaultQuotesTimeout     = 5 * time.Second
	DefaultMaxRetries        = 2
	DefaultRetryBackoff      = 250 * time.Millisecond
	DefaultQuoteConcurrency  = 8
	DefaultCacheTTL          = 300 * time.Second
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultBatchSize         = 500
	DefaultFlushInterval     = 1 * time.Second
	DefaultBufferSize        = 10000
	DefaultMetricsPath       = "/metrics"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

// DefaultAllowedOrigins are the local frontend origins accepted when none are configured.
var DefaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3001",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:3001",
}

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.WSPath == "" {
		c.Server.WSPath = DefaultWSPath
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = append([]string(nil), DefaultAllowedOrigins...)
	}
	if c.Server.ReadLimit == 0 {
		c.Server.ReadLimit = DefaultReadLimit
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.PongWait == 0 {
		c.Server.PongWait = DefaultPongWait
	}
	if c.Server.SendBuffer == 0 {
		c.Server.SendBuffer = DefaultSendBuffer
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.ErrorBackoff == 0 {
		c.Poller.ErrorBackoff = DefaultErrorBackoff
	}
	if c.Poller.FetchTimeout == 0 {
		c.Poller.FetchTimeout = DefaultFetchTimeout
	}

	if c.Heartbeat.Schedule == "" {
		c.Heartbeat.Schedule = DefaultHeartbeatSchedule
	}

	// Quotes defaults
	if c.Quotes.BaseURL == "" {
		c.Quotes.BaseURL = DefaultQuotesBaseURL
	}
	if c.Quotes.Timeout == 0 {
		c.Quotes.Timeout = DefaultQuotesTimeout
	}
	if c.Quotes.MaxRetries == 0 {
		c.Quotes.MaxRetries = DefaultMaxRetries
	}
	if c.Quotes.RetryBackoff == 0 {
		c.Quotes.RetryBackoff = DefaultRetryBackoff
	}
	if c.Quotes.Concurrency == 0 {
		c.Quotes.Concurrency = DefaultQuoteConcurrency
	}

	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = DefaultCacheTTL
	}

	if c.Database.Timescale.Enabled() {
		applyDBDefaults(&c.Database.Timescale)
	}

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultBufferSize
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
