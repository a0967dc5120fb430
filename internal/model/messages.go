package model

import "time"

// Inbound message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
)

// Outbound message types.
const (
	TypeSubscriptionConfirmed   = "subscription_confirmed"
	TypeUnsubscriptionConfirmed = "unsubscription_confirmed"
	TypeMarketData              = "market_data"
	TypeHeartbeat               = "heartbeat"
)

// ServerStatusOnline is the only status a heartbeat reports.
const ServerStatusOnline = "online"

// ClientMessage is a request received from a client over the push channel.
type ClientMessage struct {
	Type    string   `json:"type" validate:"required"`
	Symbols []string `json:"symbols"`
}

// SubscriptionMessage confirms a subscribe or unsubscribe request.
type SubscriptionMessage struct {
	Type      string   `json:"type"`
	Symbols   []string `json:"symbols"`
	Timestamp string   `json:"timestamp"`
}

// MarketDataMessage carries one symbol's poll result.
type MarketDataMessage struct {
	Type      string       `json:"type"`
	Symbol    string       `json:"symbol"`
	Data      QuotePayload `json:"data"`
	Timestamp string       `json:"timestamp"`
}

// HeartbeatMessage is the periodic liveness push.
type HeartbeatMessage struct {
	Type         string `json:"type"`
	Timestamp    string `json:"timestamp"`
	ServerStatus string `json:"server_status"`
}

// NewSubscriptionConfirmed builds a subscription_confirmed reply.
func NewSubscriptionConfirmed(symbols []string, at time.Time) SubscriptionMessage {
	return SubscriptionMessage{Type: TypeSubscriptionConfirmed, Symbols: nonNil(symbols), Timestamp: Timestamp(at)}
}

// NewUnsubscriptionConfirmed builds an unsubscription_confirmed reply.
func NewUnsubscriptionConfirmed(symbols []string, at time.Time) SubscriptionMessage {
	return SubscriptionMessage{Type: TypeUnsubscriptionConfirmed, Symbols: nonNil(symbols), Timestamp: Timestamp(at)}
}

// NewMarketData builds a market_data push.
func NewMarketData(symbol string, data QuotePayload, at time.Time) MarketDataMessage {
	return MarketDataMessage{Type: TypeMarketData, Symbol: symbol, Data: data, Timestamp: Timestamp(at)}
}

// NewHeartbeat builds a heartbeat push.
func NewHeartbeat(at time.Time) HeartbeatMessage {
	return HeartbeatMessage{Type: TypeHeartbeat, Timestamp: Timestamp(at), ServerStatus: ServerStatusOnline}
}

// nonNil keeps empty symbol lists encoding as [] rather than null.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
