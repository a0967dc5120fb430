package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/rickgao/market-stream/internal/broker"
	"github.com/rickgao/market-stream/internal/connection"
	"github.com/rickgao/market-stream/internal/poller"
)

// Pinger is a dependency whose health is reported by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc is a function adapter for Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// PollerStatus is the polling driver view included in /stats.
type PollerStatus interface {
	State() poller.State
	Stats() poller.Stats
}

// Config holds server configuration.
type Config struct {
	Addr           string
	WSPath         string
	MetricsPath    string
	AllowedOrigins []string
	WS             connection.WSConfig
	HealthTimeout  time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8000",
		WSPath:        "/ws/market-data",
		MetricsPath:   "/metrics",
		WS:            connection.DefaultWSConfig(),
		HealthTimeout: 5 * time.Second,
	}
}

type healthCheck struct {
	name   string
	pinger Pinger
}

// Server serves the WebSocket endpoint and the HTTP observability routes.
type Server struct {
	cfg     Config
	broker  *broker.Broker
	logger  *slog.Logger
	checks  []healthCheck
	metrics http.Handler
	poller  PollerStatus

	cors     *cors.Cors
	upgrader websocket.Upgrader
	router   *mux.Router

	httpServer *http.Server
	listener   net.Listener

	mu      sync.Mutex
	closing bool
	conns   sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHealthCheck adds a named dependency to /health.
func WithHealthCheck(name string, p Pinger) Option {
	return func(s *Server) {
		s.checks = append(s.checks, healthCheck{name: name, pinger: p})
	}
}

// WithMetricsHandler mounts h at the metrics path.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithPoller includes polling driver state in /stats.
func WithPoller(p PollerStatus) Option {
	return func(s *Server) {
		s.poller = p
	}
}

// New creates a Server for b.
func New(cfg Config, b *broker.Broker, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		broker: b,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.HealthTimeout <= 0 {
		s.cfg.HealthTimeout = 5 * time.Second
	}
	if s.cfg.WS.PingPeriod <= 0 {
		s.cfg.WS.PingPeriod = s.cfg.WS.PongWait * 9 / 10
	}

	s.cors = cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.router = s.routes()

	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc(s.cfg.WSPath, s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	if s.metrics != nil && s.cfg.MetricsPath != "" {
		r.Handle(s.cfg.MetricsPath, s.metrics).Methods(http.MethodGet)
	}
	return r
}

// Handler returns the CORS-wrapped router.
func (s *Server) Handler() http.Handler {
	return s.cors.Handler(s.router)
}

// checkOrigin admits non-browser clients and browser origins on the allow-list.
func (s *Server) checkOrigin(r *http.Request) bool {
	if r.Header.Get("Origin") == "" {
		return true
	}
	return s.cors.OriginAllowed(r)
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("http server started",
		"addr", ln.Addr().String(),
		"ws_path", s.cfg.WSPath,
	)
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Stop stops accepting requests, disconnects every client, and waits for the
// connection read loops to exit.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	// Hijacked WebSocket connections are not tracked by Shutdown.
	s.broker.Close()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("http server stopped")
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// acquire counts a WebSocket handler toward Stop's wait. It fails once Stop has begun.
func (s *Server) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns.Add(1)
	return true
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}
