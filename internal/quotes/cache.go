package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/market-stream/internal/model"
)

const cacheKeyPrefix = "quote:"

// DefaultCacheTTL is how long a cached quote may stand in for a failed fetch.
const DefaultCacheTTL = 5 * time.Minute

var _ Fetcher = (*CachedFetcher)(nil)

// CachedFetcher stores every good quote in Redis and serves the cached copy when a
// later fetch for that symbol fails. Cache errors never fail a fetch.
type CachedFetcher struct {
	next   Fetcher
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedFetcher wraps next with a Redis last-quote cache.
func NewCachedFetcher(next Fetcher, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedFetcher{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// Fetch delegates to the wrapped fetcher, then refreshes the cache with the
// successes and patches failures from it.
func (f *CachedFetcher) Fetch(ctx context.Context, symbols []string) (map[string]model.QuotePayload, error) {
	out, err := f.next.Fetch(ctx, symbols)
	if err != nil {
		return nil, err
	}

	var fresh []*model.Quote
	var failed []string
	for sym, p := range out {
		if !p.IsQuote() {
			failed = append(failed, sym)
			continue
		}
		fresh = append(fresh, p.Quote)
	}

	if err := f.store(ctx, fresh); err != nil {
		f.logger.Warn("failed to cache quotes", "count", len(fresh), "error", err)
	}

	if len(failed) > 0 {
		cached, err := f.load(ctx, failed)
		if err != nil {
			f.logger.Warn("failed to read quote cache", "symbols", failed, "error", err)
		}
		for sym, q := range cached {
			out[sym] = model.NewQuotePayload(q)
		}
		if len(cached) > 0 {
			f.logger.Debug("served cached quotes", "count", len(cached))
		}
	}

	return out, nil
}

// Last returns the cached quote for symbol, or ErrNoData if none is fresh.
func (f *CachedFetcher) Last(ctx context.Context, symbol string) (*model.Quote, error) {
	raw, err := f.rdb.Get(ctx, cacheKeyPrefix+symbol).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w for %s", ErrNoData, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("get cached quote: %w", err)
	}

	var q model.Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("decode cached quote: %w", err)
	}
	return &q, nil
}

// Ping checks the Redis connection.
func (f *CachedFetcher) Ping(ctx context.Context) error {
	return f.rdb.Ping(ctx).Err()
}

func (f *CachedFetcher) store(ctx context.Context, quotes []*model.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	pipe := f.rdb.Pipeline()
	for _, q := range quotes {
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("encode quote %s: %w", q.Symbol, err)
		}
		pipe.Set(ctx, cacheKeyPrefix+q.Symbol, data, f.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// load reads cached quotes via MGET; symbols without an entry are omitted.
func (f *CachedFetcher) load(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = cacheKeyPrefix + sym
	}

	values, err := f.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]model.Quote)
	for i, v := range values {
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		var q model.Quote
		if err := json.Unmarshal([]byte(s), &q); err != nil {
			f.logger.Debug("skipping corrupt cache entry", "symbol", symbols[i], "error", err)
			continue
		}
		out[symbols[i]] = q
	}
	return out, nil
}
