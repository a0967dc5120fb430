package connection

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors
var (
	ErrClosed       = errors.New("connection closed")
	ErrSlowConsumer = errors.New("send queue full (slow consumer)")
)

// ID identifies one accepted connection for its whole lifetime.
type ID = uuid.UUID

// NewID generates a fresh connection ID.
func NewID() ID {
	return uuid.New()
}

// Conn is the transport handle the broker sends through.
type Conn interface {
	// Send queues data for delivery. It must not block on a slow peer.
	Send(data []byte) error

	// Close tears down the transport without blocking on the peer. Safe to
	// call more than once.
	Close() error
}

// Handle pairs a connection ID with its transport.
type Handle struct {
	ID   ID
	Conn Conn
}

// ConnStats describes one live connection.
type ConnStats struct {
	ID                ID        `json:"id"`
	ConnectedAt       time.Time `json:"connected_at"`
	LastActivity      time.Time `json:"last_activity"`
	ConnectedDuration float64   `json:"connected_duration"` // seconds
	MessageCount      int64     `json:"message_count"`
}

// WSConfig configures a server-side WebSocket connection.
type WSConfig struct {
	WriteTimeout time.Duration // Write deadline per frame
	PongWait     time.Duration // Max time between pongs before the peer is considered gone
	PingPeriod   time.Duration // Interval between pings; must be shorter than PongWait
	ReadLimit    int64         // Max inbound message size in bytes
	SendBuffer   int           // Outbound queue depth per connection
}

// DefaultWSConfig returns sensible defaults.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		WriteTimeout: 5 * time.Second,
		PongWait:     60 * time.Second,
		PingPeriod:   54 * time.Second, // 90% of PongWait
		ReadLimit:    64 * 1024,
		SendBuffer:   256,
	}
}
