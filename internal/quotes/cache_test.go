package quotes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rickgao/market-stream/internal/model"
)

// stubFetcher returns canned results.
type stubFetcher struct {
	out map[string]model.QuotePayload
	err error
}

func (s *stubFetcher) Fetch(ctx context.Context, symbols []string) (map[string]model.QuotePayload, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]model.QuotePayload, len(s.out))
	for k, v := range s.out {
		out[k] = v
	}
	return out, nil
}

func newTestCache(t *testing.T, next Fetcher) (*CachedFetcher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewCachedFetcher(next, rdb, time.Minute, nil), mr
}

func TestCachedFetcher_StoresAndFallsBack(t *testing.T) {
	ctx := context.Background()
	stub := &stubFetcher{out: map[string]model.QuotePayload{
		"AAPL": model.NewQuotePayload(model.Quote{Symbol: "AAPL", Price: 190, Timestamp: "2024-01-02T15:04:05Z"}),
	}}
	f, mr := newTestCache(t, stub)

	if _, err := f.Fetch(ctx, []string{"AAPL"}); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !mr.Exists("quote:AAPL") {
		t.Fatal("quote not cached")
	}
	if ttl := mr.TTL("quote:AAPL"); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	// Upstream now fails for AAPL and has never seen MSFT.
	stub.out = map[string]model.QuotePayload{
		"AAPL": model.NewErrorPayload("AAPL", errors.New("timeout"), time.Now()),
		"MSFT": model.NewErrorPayload("MSFT", errors.New("timeout"), time.Now()),
	}

	got, err := f.Fetch(ctx, []string{"AAPL", "MSFT"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got["AAPL"].IsError() {
		t.Fatalf("AAPL = %+v, want cached quote", got["AAPL"])
	}
	if got["AAPL"].Quote.Price != 190 || got["AAPL"].Quote.Timestamp != "2024-01-02T15:04:05Z" {
		t.Errorf("cached AAPL = %+v", got["AAPL"].Quote)
	}
	if !got["MSFT"].IsError() {
		t.Errorf("MSFT = %+v, want error payload", got["MSFT"])
	}
}

func TestCachedFetcher_EmptyPayloadFallsBack(t *testing.T) {
	ctx := context.Background()
	stub := &stubFetcher{out: map[string]model.QuotePayload{
		"AAPL": model.NewQuotePayload(model.Quote{Symbol: "AAPL", Price: 190}),
	}}
	f, mr := newTestCache(t, stub)

	if _, err := f.Fetch(ctx, []string{"AAPL"}); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	stub.out = map[string]model.QuotePayload{"AAPL": {}, "MSFT": {}}
	got, err := f.Fetch(ctx, []string{"AAPL", "MSFT"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !got["AAPL"].IsQuote() || got["AAPL"].Quote.Price != 190 {
		t.Errorf("AAPL = %+v, want cached quote", got["AAPL"])
	}
	if got["MSFT"].IsQuote() {
		t.Errorf("MSFT = %+v, want no quote", got["MSFT"])
	}
	if mr.Exists("quote:MSFT") {
		t.Error("empty payload should not be cached")
	}
}

func TestCachedFetcher_Expiry(t *testing.T) {
	ctx := context.Background()
	stub := &stubFetcher{out: map[string]model.QuotePayload{
		"AAPL": model.NewQuotePayload(model.Quote{Symbol: "AAPL", Price: 190}),
	}}
	f, mr := newTestCache(t, stub)

	if _, err := f.Fetch(ctx, []string{"AAPL"}); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := f.Last(ctx, "AAPL"); !errors.Is(err, ErrNoData) {
		t.Errorf("Last after expiry = %v, want ErrNoData", err)
	}
}

func TestCachedFetcher_BatchErrorPassesThrough(t *testing.T) {
	upstream := errors.New("down")
	f, _ := newTestCache(t, &stubFetcher{err: upstream})

	if _, err := f.Fetch(context.Background(), []string{"AAPL"}); !errors.Is(err, upstream) {
		t.Errorf("Fetch = %v, want upstream error", err)
	}
}

func TestCachedFetcher_RedisDown(t *testing.T) {
	stub := &stubFetcher{out: map[string]model.QuotePayload{
		"AAPL": model.NewQuotePayload(model.Quote{Symbol: "AAPL", Price: 190}),
		"MSFT": model.NewErrorPayload("MSFT", errors.New("timeout"), time.Now()),
	}}
	f, mr := newTestCache(t, stub)
	mr.Close()

	got, err := f.Fetch(context.Background(), []string{"AAPL", "MSFT"})
	if err != nil {
		t.Fatalf("Fetch failed with redis down: %v", err)
	}
	if got["AAPL"].IsError() || !got["MSFT"].IsError() {
		t.Errorf("got %+v, want upstream results unchanged", got)
	}
	if err := f.Ping(context.Background()); err == nil {
		t.Error("Ping succeeded with redis down")
	}
}

func TestCachedFetcher_Last(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestCache(t, &stubFetcher{out: map[string]model.QuotePayload{
		"SPY": model.NewQuotePayload(model.Quote{Symbol: "SPY", Price: 500}),
	}})

	if _, err := f.Last(ctx, "SPY"); !errors.Is(err, ErrNoData) {
		t.Errorf("Last before fetch = %v, want ErrNoData", err)
	}
	if _, err := f.Fetch(ctx, []string{"SPY"}); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	q, err := f.Last(ctx, "SPY")
	if err != nil {
		t.Fatalf("Last failed: %v", err)
	}
	if q.Price != 500 {
		t.Errorf("Price = %v, want 500", q.Price)
	}
}
