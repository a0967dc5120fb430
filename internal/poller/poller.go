package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/market-stream/internal/metrics"
	"github.com/rickgao/market-stream/internal/model"
)

// Fetcher retrieves quotes for a batch of symbols. A returned error means the whole
// batch failed; per-symbol failures come back as error payloads in the map.
type Fetcher interface {
	Fetch(ctx context.Context, symbols []string) (map[string]model.QuotePayload, error)
}

// FetcherFunc is a function adapter for Fetcher.
type FetcherFunc func(ctx context.Context, symbols []string) (map[string]model.QuotePayload, error)

func (f FetcherFunc) Fetch(ctx context.Context, symbols []string) (map[string]model.QuotePayload, error) {
	return f(ctx, symbols)
}

// Source provides the symbols to poll and the fan-out for results.
type Source interface {
	ActiveSymbols() []string
	BroadcastToSymbol(symbol string, msg any) int
}

// QuoteSink receives successful quotes after dispatch. Offer must not block.
type QuoteSink interface {
	Offer(q model.Quote) bool
}

// State is the driver's position in its loop.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateDispatching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateDispatching:
		return "dispatching"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config holds poller configuration.
type Config struct {
	Interval     time.Duration // Wait between ticks (default: 1s)
	ErrorBackoff time.Duration // Wait after a failed fetch (default: 5s)
	FetchTimeout time.Duration // Bound on a single batch fetch (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     time.Second,
		ErrorBackoff: 5 * time.Second,
		FetchTimeout: 10 * time.Second,
	}
}

// Stats are cumulative counters since Start.
type Stats struct {
	Ticks       int64 `json:"ticks"`
	Skipped     int64 `json:"skipped"`
	FetchErrors int64 `json:"fetch_errors"`
	Dispatched  int64 `json:"dispatched"`
	Delivered   int64 `json:"delivered"`
}

// Poller fetches quotes for the currently subscribed symbols and hands each result
// to the fan-out.
type Poller struct {
	cfg     Config
	fetcher Fetcher
	source  Source
	sink    QuoteSink
	metrics *metrics.Metrics
	logger  *slog.Logger

	state       atomic.Int32
	ticks       atomic.Int64
	skipped     atomic.Int64
	fetchErrors atomic.Int64
	dispatched  atomic.Int64
	delivered   atomic.Int64

	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller. sink and m may be nil.
func New(cfg Config, fetcher Fetcher, source Source, sink QuoteSink, m *metrics.Metrics, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaults.ErrorBackoff
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaults.FetchTimeout
	}
	return &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		source:  source,
		sink:    sink,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("polling driver started",
		"interval", p.cfg.Interval,
		"error_backoff", p.cfg.ErrorBackoff,
	)

	return nil
}

// Stop gracefully shuts down the poller. An in-flight fetch is cancelled.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("polling driver stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State reports where the loop currently is.
func (p *Poller) State() State {
	return State(p.state.Load())
}

// Stats returns the cumulative counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Ticks:       p.ticks.Load(),
		Skipped:     p.skipped.Load(),
		FetchErrors: p.fetchErrors.Load(),
		Dispatched:  p.dispatched.Load(),
		Delivered:   p.delivered.Load(),
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	// Poll immediately on start.
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-timer.C:
		}

		wait := p.cfg.Interval
		if err := p.tick(p.ctx); err != nil {
			if p.ctx.Err() != nil {
				return
			}
			p.logger.Error("fetch failed, backing off",
				"error", err,
				"backoff", p.cfg.ErrorBackoff,
			)
			wait = p.cfg.ErrorBackoff
		}
		timer.Reset(wait)
	}
}

// tick runs one fetch and dispatch cycle. Only a whole-batch fetch failure is
// returned; delivery problems are handled by the source.
func (p *Poller) tick(ctx context.Context) error {
	defer p.state.Store(int32(StateIdle))
	p.ticks.Add(1)

	symbols := p.source.ActiveSymbols()
	if len(symbols) == 0 {
		p.skipped.Add(1)
		p.metrics.PollTick(metrics.PollSkipped)
		return nil
	}

	p.state.Store(int32(StateFetching))
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	start := time.Now()
	quotes, err := p.fetcher.Fetch(fetchCtx, symbols)
	cancel()
	p.metrics.ObserveFetch(time.Since(start))

	if err != nil {
		p.fetchErrors.Add(1)
		p.metrics.PollTick(metrics.PollError)
		return fmt.Errorf("fetch %d symbols: %w", len(symbols), err)
	}

	p.state.Store(int32(StateDispatching))
	delivered := 0
	for _, sym := range symbols {
		payload, ok := quotes[sym]
		if !ok {
			continue
		}
		delivered += p.source.BroadcastToSymbol(sym, model.NewMarketData(sym, payload, p.now()))
		p.dispatched.Add(1)
		p.metrics.QuoteDispatched(payload.IsError())

		if p.sink != nil && payload.IsQuote() {
			if !p.sink.Offer(*payload.Quote) {
				p.logger.Debug("quote sink full, dropping", "symbol", sym)
			}
		}
	}
	p.delivered.Add(int64(delivered))
	p.metrics.PollTick(metrics.PollOK)

	p.logger.Debug("poll cycle complete",
		"symbols", len(symbols),
		"fetched", len(quotes),
		"delivered", delivered,
		"duration", time.Since(start),
	)
	return nil
}
