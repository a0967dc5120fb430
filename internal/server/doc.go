// Package server exposes the broker over HTTP.
//
// Routes:
//   - GET {ws_path}: WebSocket upgrade; one read loop per connection feeds the broker
//   - GET /health: connection and symbol counts plus dependency checks
//   - GET /stats: full broker statistics
//   - GET /: service banner
//   - GET {metrics_path}: Prometheus metrics
//
// CORS for the HTTP routes and the WebSocket origin check share one allow-list.
package server
