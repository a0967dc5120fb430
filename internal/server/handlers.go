package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/market-stream/internal/broker"
	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/poller"
	"github.com/rickgao/market-stream/internal/version"
)

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string         `json:"status"`
	Services  map[string]any `json:"services"`
	Timestamp string         `json:"timestamp"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	broker.Stats
	Poller *PollerView `json:"poller,omitempty"`
}

// PollerView is the polling driver section of /stats.
type PollerView struct {
	State string `json:"state"`
	poller.Stats
}

// handleHealth reports connection counts and pings every registered dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthTimeout)
	defer cancel()

	health := HealthResponse{
		Status: StatusHealthy,
		Services: map[string]any{
			"websocket_connections": s.broker.Count(),
			"active_symbols":        len(s.broker.ActiveSymbols()),
		},
		Timestamp: model.Timestamp(time.Now()),
	}

	for _, c := range s.checks {
		if err := c.pinger.Ping(ctx); err != nil {
			health.Status = StatusUnhealthy
			health.Services[c.name] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
			continue
		}
		health.Services[c.name] = "connected"
	}

	status := http.StatusOK
	if health.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Stats: s.broker.Stats()}
	if s.poller != nil {
		resp.Poller = &PollerView{
			State: s.poller.State().String(),
			Stats: s.poller.Stats(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// RootResponse is the service banner served at GET /.
type RootResponse struct {
	Message   string `json:"message"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	version.BuildInfo
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{
		Message:   "Market Stream API",
		Status:    "running",
		Timestamp: model.Timestamp(time.Now()),
		BuildInfo: version.Info(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
