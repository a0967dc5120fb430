package config

import "time"

// Config is the root configuration for a market-stream instance.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Server    ServerConfig    `yaml:"server"`
	Poller    PollerConfig    `yaml:"poller"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Quotes    QuotesConfig    `yaml:"quotes"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	Writers   WritersConfig   `yaml:"writers"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// InstanceConfig identifies this instance in logs.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds the HTTP and WebSocket listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	WSPath          string        `yaml:"ws_path"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ReadLimit       int64         `yaml:"read_limit"`    // Max inbound frame size in bytes
	WriteTimeout    time.Duration `yaml:"write_timeout"` // Per-frame write deadline
	PongWait        time.Duration `yaml:"pong_wait"`
	SendBuffer      int           `yaml:"send_buffer"` // Outbound frames queued per connection
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PollerConfig holds polling driver settings.
type PollerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	ErrorBackoff time.Duration `yaml:"error_backoff"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// HeartbeatConfig holds the keep-alive schedule.
type HeartbeatConfig struct {
	Schedule string `yaml:"schedule"` // cron spec, e.g. "@every 30s"
}

// QuotesConfig holds quote API settings.
type QuotesConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	Concurrency  int           `yaml:"concurrency"`
}

// RedisConfig holds the optional quote cache. URL takes precedence over Addr.
type RedisConfig struct {
	URL      string        `yaml:"url"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Enabled reports whether a cache is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Addr != ""
}

// DatabaseConfig holds the optional TimescaleDB connection for quote history.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
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

// Enabled reports whether a database is configured.
func (db DBConfig) Enabled() bool {
	return db.Host != ""
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// MetricsConfig holds Prometheus metrics settings. Metrics share the main listener.
type MetricsConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}
