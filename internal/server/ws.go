package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/rickgao/market-stream/internal/broker"
	"github.com/rickgao/market-stream/internal/connection"
)

// handleWS upgrades the request and runs the connection's read loop until the
// client goes away. Every exit path ends in Broker.Disconnect.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.acquire() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.conns.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := connection.NewWSConn(ws, s.cfg.WS, s.logger)
	id := s.broker.Connect(conn)
	logger := s.logger.With("conn_id", id)

	// Stop may have closed the broker between acquire and Connect.
	if s.isClosing() {
		s.broker.Disconnect(id)
		return
	}

	conn.Start(func(err error) {
		logger.Debug("write pump failed", "error", err)
		s.broker.Disconnect(id)
	})

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("read failed", "error", err)
			}
			s.broker.Disconnect(id)
			return
		}

		if err := s.broker.HandleMessage(id, data); err != nil {
			if errors.Is(err, broker.ErrMalformedMessage) {
				logger.Warn("dropping malformed message", "error", err)
				continue
			}
			logger.Error("handle message", "error", err)
		}
	}
}
