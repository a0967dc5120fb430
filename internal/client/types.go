package client

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rickgao/market-stream/internal/model"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrAlreadyClosed   = errors.New("client already closed")
	ErrStaleConnection = errors.New("no traffic from server, connection stale")
)

// Config configures a stream client.
type Config struct {
	URL          string        // ws://host:port/ws/market-data
	Origin       string        // Origin header; empty omits it
	PingTimeout  time.Duration // Max silence before the connection is considered stale
	WriteTimeout time.Duration
	BufferSize   int // Decoded messages buffered before dropping
}

// DefaultConfig returns sensible defaults for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:          url,
		PingTimeout:  90 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}
}

// Message is one server push. Fields not used by Type are zero.
type Message struct {
	Type         string             `json:"type"`
	Symbol       string             `json:"symbol,omitempty"`
	Symbols      []string           `json:"symbols,omitempty"`
	Data         model.QuotePayload `json:"data"`
	Timestamp    string             `json:"timestamp"`
	ServerStatus string             `json:"server_status,omitempty"`

	Raw        json.RawMessage `json:"-"`
	ReceivedAt time.Time       `json:"-"`
}
