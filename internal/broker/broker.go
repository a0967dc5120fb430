package broker

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rickgao/market-stream/internal/connection"
	"github.com/rickgao/market-stream/internal/metrics"
	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/subscription"
)

// Errors
var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrMalformedMessage  = errors.New("malformed client message")
)

// Disconnect reasons, used as the metrics label.
const (
	ReasonClosed     = "closed"
	ReasonSendFailed = "send_failed"
	ReasonShutdown   = "shutdown"
)

// Stats is the observability view consumed by the health and stats endpoints.
type Stats struct {
	TotalConnections  int                `json:"total_connections"`
	ActiveSymbols     int                `json:"active_symbols"`
	SymbolDetails     map[string]int     `json:"symbol_details"`
	ConnectionDetails []ConnectionDetail `json:"connection_details"`
}

// ConnectionDetail is one connection's entry in Stats.
type ConnectionDetail struct {
	ID                connection.ID `json:"id"`
	SubscribedSymbols int           `json:"subscribed_symbols"`
	ConnectedDuration float64       `json:"connected_duration"`
	MessageCount      int64         `json:"message_count"`
}

// Broker routes messages between the polling driver and connected clients.
type Broker struct {
	index    *subscription.Index
	registry *connection.Registry
	metrics  *metrics.Metrics
	validate *validator.Validate
	logger   *slog.Logger

	now func() time.Time
}

// New creates a Broker over an index and a registry. m may be nil.
func New(index *subscription.Index, registry *connection.Registry, m *metrics.Metrics, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		index:    index,
		registry: registry,
		metrics:  m,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// Connect registers a new transport and returns its ID.
func (b *Broker) Connect(conn connection.Conn) connection.ID {
	id := connection.NewID()

	// Index first: once the registry knows the ID, broadcasts may target it.
	b.index.Add(id)
	b.registry.Register(id, conn)
	b.metrics.ConnectionOpened()

	b.logger.Info("client connected",
		"conn_id", id,
		"total_connections", b.registry.Count(),
	)
	return id
}

// Disconnect removes a connection from the registry and the index and closes its
// transport. Only the first call for an ID does anything; it returns false afterwards.
func (b *Broker) Disconnect(id connection.ID) bool {
	return b.disconnect(id, ReasonClosed)
}

func (b *Broker) disconnect(id connection.ID, reason string) bool {
	conn, ok := b.registry.Deregister(id)
	if !ok {
		return false
	}
	b.index.RemoveConnection(id)
	b.metrics.ConnectionClosed(reason)
	b.metrics.SetActiveSymbols(b.index.Len())

	if err := conn.Close(); err != nil {
		b.logger.Debug("close transport", "conn_id", id, "error", err)
	}

	b.logger.Info("client disconnected",
		"conn_id", id,
		"reason", reason,
		"total_connections", b.registry.Count(),
	)
	return true
}

// Subscribe adds symbols for a connection and confirms the normalized request.
// Returns the symbols that were newly added.
func (b *Broker) Subscribe(id connection.ID, symbols []string) []string {
	normalized := model.NormalizeSymbols(symbols)
	added := b.index.Subscribe(id, normalized)
	b.metrics.SetActiveSymbols(b.index.Len())

	b.logger.Debug("client subscribed", "conn_id", id, "symbols", normalized, "added", added)

	b.SendTo(id, model.NewSubscriptionConfirmed(normalized, b.now()))
	return added
}

// Unsubscribe removes symbols for a connection and confirms the normalized request.
// Returns the symbols that were actually held.
func (b *Broker) Unsubscribe(id connection.ID, symbols []string) []string {
	normalized := model.NormalizeSymbols(symbols)
	removed := b.index.Unsubscribe(id, normalized)
	b.metrics.SetActiveSymbols(b.index.Len())

	b.logger.Debug("client unsubscribed", "conn_id", id, "symbols", normalized, "removed", removed)

	b.SendTo(id, model.NewUnsubscriptionConfirmed(normalized, b.now()))
	return removed
}

// HandleMessage applies one raw client message. Malformed messages return
// ErrMalformedMessage and change nothing; unknown types are ignored.
func (b *Broker) HandleMessage(id connection.ID, data []byte) error {
	var msg model.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := b.validate.Struct(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch msg.Type {
	case model.TypeSubscribe:
		b.Subscribe(id, msg.Symbols)
	case model.TypeUnsubscribe:
		b.Unsubscribe(id, msg.Symbols)
	default:
		b.logger.Debug("ignoring message type", "conn_id", id, "type", msg.Type)
	}
	return nil
}

// SendTo delivers msg to one connection. A failed send evicts the connection and
// the error is returned for the caller's information only.
func (b *Broker) SendTo(id connection.ID, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	conn, ok := b.registry.Get(id)
	if !ok {
		return ErrUnknownConnection
	}

	if err := conn.Send(data); err != nil {
		b.logger.Warn("send failed, evicting", "conn_id", id, "error", err)
		b.metrics.SendFailed()
		b.disconnect(id, ReasonSendFailed)
		return err
	}

	b.registry.Touch(id)
	b.metrics.MessagesSent(1)
	return nil
}

// BroadcastAll delivers msg once to every connection live at the start of the call.
// Returns the number of successful deliveries.
func (b *Broker) BroadcastAll(msg any) int {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("marshal broadcast", "error", err)
		return 0
	}
	return b.deliver(b.registry.Snapshot(), data)
}

// BroadcastToSymbol delivers msg once to every connection subscribed to symbol at
// the start of the call. Returns the number of successful deliveries.
func (b *Broker) BroadcastToSymbol(symbol string, msg any) int {
	ids := b.index.SubscribersOf(model.NormalizeSymbol(symbol))
	if len(ids) == 0 {
		return 0
	}

	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("marshal broadcast", "symbol", symbol, "error", err)
		return 0
	}

	// IDs evicted since the index snapshot have no handle and are skipped.
	return b.deliver(b.registry.Resolve(ids), data)
}

// deliver sends data to each handle and evicts the failures after the pass.
func (b *Broker) deliver(handles []connection.Handle, data []byte) int {
	var failed []connection.ID
	delivered := 0

	for _, h := range handles {
		if err := h.Conn.Send(data); err != nil {
			b.logger.Warn("broadcast send failed", "conn_id", h.ID, "error", err)
			failed = append(failed, h.ID)
			continue
		}
		b.registry.Touch(h.ID)
		delivered++
	}
	b.metrics.MessagesSent(delivered)

	for _, id := range failed {
		b.metrics.SendFailed()
		b.disconnect(id, ReasonSendFailed)
	}
	return delivered
}

// Heartbeat pushes the liveness message to every connection.
func (b *Broker) Heartbeat() int {
	return b.BroadcastAll(model.NewHeartbeat(b.now()))
}

// ActiveSymbols returns the symbols that currently have subscribers.
func (b *Broker) ActiveSymbols() []string {
	return b.index.ActiveSymbols()
}

// SymbolsOf returns the symbols a connection holds.
func (b *Broker) SymbolsOf(id connection.ID) []string {
	return b.index.SymbolsOf(id)
}

// Count returns the number of live connections.
func (b *Broker) Count() int {
	return b.registry.Count()
}

// Stats returns connection and subscription statistics.
func (b *Broker) Stats() Stats {
	conns := b.registry.Stats()
	held := b.index.ConnectionCounts()
	symbols := b.index.SymbolCounts()

	details := make([]ConnectionDetail, 0, len(conns))
	for _, c := range conns {
		details = append(details, ConnectionDetail{
			ID:                c.ID,
			SubscribedSymbols: held[c.ID],
			ConnectedDuration: c.ConnectedDuration,
			MessageCount:      c.MessageCount,
		})
	}

	return Stats{
		TotalConnections:  len(conns),
		ActiveSymbols:     len(symbols),
		SymbolDetails:     symbols,
		ConnectionDetails: details,
	}
}

// Close disconnects every live connection.
func (b *Broker) Close() {
	for _, h := range b.registry.Snapshot() {
		b.disconnect(h.ID, ReasonShutdown)
	}
}
