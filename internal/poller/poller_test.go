package poller

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/market-stream/internal/model"
)

// mockSource serves a fixed symbol list and records broadcasts.
type mockSource struct {
	mu      sync.Mutex
	symbols []string
	sent    []model.MarketDataMessage
}

func (s *mockSource) ActiveSymbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.symbols...)
}

func (s *mockSource) BroadcastToSymbol(symbol string, msg any) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg.(model.MarketDataMessage))
	return 1
}

func (s *mockSource) setSymbols(symbols ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols = symbols
}

func (s *mockSource) broadcasts() []model.MarketDataMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.MarketDataMessage(nil), s.sent...)
}

// mockSink collects offered quotes.
type mockSink struct {
	mu     sync.Mutex
	quotes []model.Quote
}

func (s *mockSink) Offer(q model.Quote) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = append(s.quotes, q)
	return true
}

func quoteFetcher(calls *atomic.Int32, got *[][]string, mu *sync.Mutex) FetcherFunc {
	return func(ctx context.Context, symbols []string) (map[string]model.QuotePayload, error) {
		calls.Add(1)
		if got != nil {
			mu.Lock()
			*got = append(*got, symbols)
			mu.Unlock()
		}
		out := make(map[string]model.QuotePayload, len(symbols))
		for _, sym := range symbols {
			out[sym] = model.NewQuotePayload(model.Quote{Symbol: sym, Price: 1})
		}
		return out, nil
	}
}

func TestPoller_SkipsWithoutSubscribers(t *testing.T) {
	var calls atomic.Int32
	src := &mockSource{}
	p := New(DefaultConfig(), quoteFetcher(&calls, nil, nil), src, nil, nil, nil)

	if err := p.tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if calls.Load() != 0 {
		t.Errorf("fetcher called %d times, want 0", calls.Load())
	}
	stats := p.Stats()
	if stats.Ticks != 1 || stats.Skipped != 1 {
		t.Errorf("stats = %+v, want 1 tick 1 skipped", stats)
	}
}

func TestPoller_PartialFetch(t *testing.T) {
	src := &mockSource{symbols: []string{"AAPL", "MSFT"}}
	fetcher := FetcherFunc(func(ctx context.Context, symbols []string) (map[string]model.QuotePayload, error) {
		return map[string]model.QuotePayload{
			"AAPL": model.NewQuotePayload(model.Quote{Symbol: "AAPL", Price: 190.5}),
		}, nil
	})
	p := New(DefaultConfig(), fetcher, src, nil, nil, nil)

	if err := p.tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	sent := src.broadcasts()
	if len(sent) != 1 {
		t.Fatalf("got %d broadcasts, want 1", len(sent))
	}
	if sent[0].Symbol != "AAPL" || sent[0].Type != model.TypeMarketData {
		t.Errorf("broadcast = %+v", sent[0])
	}
	if sent[0].Data.Quote == nil || sent[0].Data.Quote.Price != 190.5 {
		t.Errorf("payload = %+v", sent[0].Data)
	}
	if got := p.Stats().Dispatched; got != 1 {
		t.Errorf("Dispatched = %d, want 1", got)
	}
}

func TestPoller_ErrorPayloadDispatchedNotStored(t *testing.T) {
	src := &mockSource{symbols: []string{"AAPL", "ZZZZ"}}
	sink := &mockSink{}
	fetcher := FetcherFunc(func(ctx context.Context, symbols []string) (map[string]model.QuotePayload, error) {
		return map[string]model.QuotePayload{
			"AAPL": model.NewQuotePayload(model.Quote{Symbol: "AAPL", Price: 1}),
			"ZZZZ": model.NewErrorPayload("ZZZZ", errors.New("no data found"), time.Now()),
		}, nil
	})
	p := New(DefaultConfig(), fetcher, src, sink, nil, nil)

	if err := p.tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	sent := src.broadcasts()
	if len(sent) != 2 {
		t.Fatalf("got %d broadcasts, want 2", len(sent))
	}
	if !sent[1].Data.IsError() || sent[1].Symbol != "ZZZZ" {
		t.Errorf("second broadcast = %+v, want ZZZZ error payload", sent[1])
	}
	if len(sink.quotes) != 1 || sink.quotes[0].Symbol != "AAPL" {
		t.Errorf("sink got %+v, want only AAPL", sink.quotes)
	}
}

func TestPoller_EmptyPayloadNotOffered(t *testing.T) {
	src := &mockSource{symbols: []string{"AAPL", "MSFT"}}
	sink := &mockSink{}
	fetcher := FetcherFunc(func(ctx context.Context, symbols []string) (map[string]model.QuotePayload, error) {
		return map[string]model.QuotePayload{
			"AAPL": model.NewQuotePayload(model.Quote{Symbol: "AAPL", Price: 1}),
			"MSFT": {},
		}, nil
	})
	p := New(DefaultConfig(), fetcher, src, sink, nil, nil)

	if err := p.tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if got := len(src.broadcasts()); got != 2 {
		t.Errorf("got %d broadcasts, want 2", got)
	}
	if len(sink.quotes) != 1 || sink.quotes[0].Symbol != "AAPL" {
		t.Errorf("sink got %+v, want only AAPL", sink.quotes)
	}
}

func TestPoller_FetchError(t *testing.T) {
	src := &mockSource{symbols: []string{"AAPL"}}
	fetchErr := errors.New("upstream down")
	fetcher := FetcherFunc(func(ctx context.Context, symbols []string) (map[string]model.QuotePayload, error) {
		return nil, fetchErr
	})
	p := New(DefaultConfig(), fetcher, src, nil, nil, nil)

	err := p.tick(context.Background())
	if !errors.Is(err, fetchErr) {
		t.Errorf("tick = %v, want wrapped fetch error", err)
	}
	if len(src.broadcasts()) != 0 {
		t.Error("broadcast after failed fetch")
	}
	if got := p.Stats().FetchErrors; got != 1 {
		t.Errorf("FetchErrors = %d, want 1", got)
	}
	if got := p.State(); got != StateIdle {
		t.Errorf("State = %v, want idle", got)
	}
}

func TestPoller_BacksOffAfterError(t *testing.T) {
	src := &mockSource{symbols: []string{"AAPL"}}
	var calls atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context, symbols []string) (map[string]model.QuotePayload, error) {
		calls.Add(1)
		return nil, errors.New("upstream down")
	})

	cfg := Config{
		Interval:     5 * time.Millisecond,
		ErrorBackoff: time.Hour,
		FetchTimeout: time.Second,
	}
	p := New(cfg, fetcher, src, nil, nil, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 during backoff", got)
	}
}

func TestPoller_FollowsDemand(t *testing.T) {
	src := &mockSource{}
	var calls atomic.Int32
	var mu sync.Mutex
	var batches [][]string

	cfg := Config{
		Interval:     5 * time.Millisecond,
		ErrorBackoff: time.Second,
		FetchTimeout: time.Second,
	}
	p := New(cfg, quoteFetcher(&calls, &batches, &mu), src, nil, nil, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		p.Stop(stopCtx)
	}()

	time.Sleep(30 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("fetched %d times with no subscribers", calls.Load())
	}

	src.setSymbols("AAPL", "MSFT")
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(batches) == 0 {
		t.Fatal("no fetch after subscribing")
	}
	if !reflect.DeepEqual(batches[0], []string{"AAPL", "MSFT"}) {
		t.Errorf("first batch = %v, want [AAPL MSFT]", batches[0])
	}
}

func TestPoller_StopCancelsFetch(t *testing.T) {
	src := &mockSource{symbols: []string{"AAPL"}}
	started := make(chan struct{})
	var once sync.Once
	fetcher := FetcherFunc(func(ctx context.Context, symbols []string) (map[string]model.QuotePayload, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return nil, ctx.Err()
	})

	cfg := DefaultConfig()
	cfg.FetchTimeout = time.Hour
	p := New(cfg, fetcher, src, nil, nil, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}
	if got := p.State(); got != StateFetching {
		t.Errorf("State = %v, want fetching", got)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateFetching, "fetching"},
		{StateDispatching, "dispatching"},
		{State(9), "state(9)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
