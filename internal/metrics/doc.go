// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Live WebSocket connections and active (polled) symbols
//   - Messages delivered, send failures and evictions by reason
//   - Poll ticks by outcome, fetch latency and dispatched payloads
//   - Quote writer inserts and flush errors
//
// A nil *Metrics is valid and records nothing, so components can run without it in tests.
package metrics
