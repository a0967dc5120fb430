// Package client is a Go subscriber for the market-stream WebSocket endpoint,
// used by cmd/streamtest and the server tests.
package client
