package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/market-stream/internal/broker"
	"github.com/rickgao/market-stream/internal/config"
	"github.com/rickgao/market-stream/internal/connection"
	"github.com/rickgao/market-stream/internal/database"
	"github.com/rickgao/market-stream/internal/metrics"
	"github.com/rickgao/market-stream/internal/poller"
	"github.com/rickgao/market-stream/internal/quotes"
	"github.com/rickgao/market-stream/internal/server"
	"github.com/rickgao/market-stream/internal/subscription"
	"github.com/rickgao/market-stream/internal/version"
	"github.com/rickgao/market-stream/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/monitor.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional env file loaded before the config")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := config.LoadDotEnv(*envPath); err != nil {
		slog.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting market stream",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("market stream failed", "error", err)
		os.Exit(1)
	}
	logger.Info("market stream stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Optional dependencies connect concurrently.
	var (
		rdb  *redis.Client
		pool *pgxpool.Pool
	)
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Redis.Enabled() {
		g.Go(func() error {
			c, err := connectRedis(gctx, cfg.Redis)
			if err != nil {
				return err
			}
			rdb = c
			return nil
		})
	}
	if cfg.Database.Timescale.Enabled() {
		g.Go(func() error {
			logger.Info("connecting to database",
				"host", cfg.Database.Timescale.Host,
				"port", cfg.Database.Timescale.Port,
				"database", cfg.Database.Timescale.Name,
			)
			p, err := database.Connect(gctx, cfg.Database.Timescale)
			if err != nil {
				return fmt.Errorf("connect timescale: %w", err)
			}
			if err := database.Migrate(gctx, p); err != nil {
				p.Close()
				return err
			}
			pool = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if rdb != nil {
			rdb.Close()
		}
		if pool != nil {
			pool.Close()
		}
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		logger.Info("redis connected")
	}
	if pool != nil {
		defer pool.Close()
		logger.Info("database connected")
	}

	// Broker
	b := broker.New(subscription.NewIndex(), connection.NewRegistry(), m, logger)

	// Quote source
	var fetcher poller.Fetcher = quotes.NewClient(
		cfg.Quotes.BaseURL,
		quotes.WithLogger(logger),
		quotes.WithTimeout(cfg.Quotes.Timeout),
		quotes.WithRetries(cfg.Quotes.MaxRetries, cfg.Quotes.RetryBackoff),
		quotes.WithConcurrency(cfg.Quotes.Concurrency),
	)
	srvOpts := []server.Option{
		server.WithLogger(logger),
		server.WithMetricsHandler(metrics.Handler(reg)),
	}
	if rdb != nil {
		fetcher = quotes.NewCachedFetcher(fetcher, rdb, cfg.Redis.CacheTTL, logger)
		srvOpts = append(srvOpts, server.WithHealthCheck("redis", server.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})))
	}

	// Quote history
	var qw *writer.QuoteWriter
	var sink poller.QuoteSink
	if pool != nil {
		qw = writer.NewQuoteWriter(writer.WriterConfig{
			BatchSize:     cfg.Writers.BatchSize,
			FlushInterval: cfg.Writers.FlushInterval,
			BufferSize:    cfg.Writers.BufferSize,
		}, pool, m, logger)
		sink = qw
		srvOpts = append(srvOpts, server.WithHealthCheck("timescaledb", pool))
	}

	p := poller.New(poller.Config{
		Interval:     cfg.Poller.Interval,
		ErrorBackoff: cfg.Poller.ErrorBackoff,
		FetchTimeout: cfg.Poller.FetchTimeout,
	}, fetcher, b, sink, m, logger)
	srvOpts = append(srvOpts, server.WithPoller(p))

	hb := broker.NewHeartbeater(b, cfg.Heartbeat.Schedule, logger)

	srv := server.New(server.Config{
		Addr:           cfg.Server.Addr,
		WSPath:         cfg.Server.WSPath,
		MetricsPath:    cfg.Metrics.Path,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		WS: connection.WSConfig{
			WriteTimeout: cfg.Server.WriteTimeout,
			PongWait:     cfg.Server.PongWait,
			PingPeriod:   cfg.Server.PongWait * 9 / 10,
			ReadLimit:    cfg.Server.ReadLimit,
			SendBuffer:   cfg.Server.SendBuffer,
		},
	}, b, srvOpts...)

	// Start in dependency order; stop in reverse.
	var stops []func(context.Context) error
	start := func(name string, startFn func(context.Context) error, stopFn func(context.Context) error) error {
		if err := startFn(ctx); err != nil {
			return fmt.Errorf("start %s: %w", name, err)
		}
		stops = append(stops, stopFn)
		return nil
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		for i := len(stops) - 1; i >= 0; i-- {
			if err := stops[i](shutdownCtx); err != nil {
				logger.Warn("component stop failed", "error", err)
			}
		}
	}()

	if qw != nil {
		if err := start("quote writer", qw.Start, qw.Stop); err != nil {
			return err
		}
	}
	if err := start("http server", srv.Start, srv.Stop); err != nil {
		return err
	}
	if err := start("heartbeat", hb.Start, hb.Stop); err != nil {
		return err
	}
	if err := start("polling driver", p.Start, p.Stop); err != nil {
		return err
	}

	logger.Info("market stream running",
		"addr", srv.Addr(),
		"ws_path", cfg.Server.WSPath,
		"redis", rdb != nil,
		"timescaledb", pool != nil,
	)

	// Wait for shutdown
	<-ctx.Done()
	logger.Info("shutting down...")
	return nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
