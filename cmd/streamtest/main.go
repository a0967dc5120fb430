// streamtest subscribes to a market-stream server and prints pushes to the console.
// Usage: go run ./cmd/streamtest --url ws://localhost:8000/ws/market-data --symbols AAPL,MSFT
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/market-stream/internal/client"
	"github.com/rickgao/market-stream/internal/model"
)

func main() {
	url := flag.String("url", "ws://localhost:8000/ws/market-data", "stream endpoint")
	symbols := flag.String("symbols", "AAPL,MSFT,GOOGL", "comma-separated symbols to subscribe to")
	origin := flag.String("origin", "", "Origin header to send")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := client.DefaultConfig(*url)
	cfg.Origin = *origin
	c := client.New(cfg, logger)

	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	err := c.Connect(connectCtx)
	connectCancel()
	if err != nil {
		logger.Error("failed to connect", "url", *url, "error", err)
		os.Exit(1)
	}
	defer c.Close()

	syms := model.NormalizeSymbols(strings.Split(*symbols, ","))
	if err := c.Subscribe(syms...); err != nil {
		logger.Error("failed to subscribe", "error", err)
		os.Exit(1)
	}
	logger.Info("streaming started - press Ctrl+C to stop", "symbols", syms)

	var received, errors int
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown complete", "received", received, "errors", errors)
			return

		case err := <-c.Errors():
			logger.Error("connection lost", "error", err)
			os.Exit(1)

		case <-ticker.C:
			logger.Info("stats", "received", received, "quote_errors", errors)

		case msg := <-c.Messages():
			received++
			if msg.Type == model.TypeMarketData && msg.Data.IsError() {
				errors++
			}
			printMessage(msg, *verbose)
		}
	}
}

func printMessage(msg client.Message, verbose bool) {
	if verbose {
		var pretty any
		json.Unmarshal(msg.Raw, &pretty)
		data, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Printf("[%s] %s\n", strings.ToUpper(msg.Type), data)
		return
	}

	switch msg.Type {
	case model.TypeMarketData:
		if msg.Data.IsError() {
			fmt.Printf("[QUOTE ERROR] symbol=%s error=%s\n", msg.Symbol, msg.Data.Err.Error)
			return
		}
		q := msg.Data.Quote
		if q == nil {
			return
		}
		fmt.Printf("[QUOTE] symbol=%s price=%.2f change=%+.2f (%+.2f%%) vol=%d\n",
			q.Symbol, q.Price, q.Change, q.ChangePercent, q.Volume)
	case model.TypeSubscriptionConfirmed, model.TypeUnsubscriptionConfirmed:
		fmt.Printf("[%s] symbols=%v\n", strings.ToUpper(msg.Type), msg.Symbols)
	case model.TypeHeartbeat:
		fmt.Printf("[HEARTBEAT] status=%s at=%s\n", msg.ServerStatus, msg.Timestamp)
	default:
		fmt.Printf("[%s] %s\n", strings.ToUpper(msg.Type), msg.Raw)
	}
}
