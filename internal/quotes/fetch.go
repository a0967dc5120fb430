package quotes

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/market-stream/internal/model"
)

// ErrUnavailable is returned by Fetch when no symbol in the batch could reach the
// API, or the API rejected every request.
var ErrUnavailable = errors.New("quote api unavailable")

// Fetcher retrieves quotes for a batch of symbols.
type Fetcher interface {
	Fetch(ctx context.Context, symbols []string) (map[string]model.QuotePayload, error)
}

var _ Fetcher = (*Client)(nil)

// Fetch queries every symbol concurrently. Per-symbol failures become error
// payloads. An error is returned only when ctx ends or every symbol failed to
// reach the API.
func (c *Client) Fetch(ctx context.Context, symbols []string) (map[string]model.QuotePayload, error) {
	var (
		mu          sync.Mutex
		out         = make(map[string]model.QuotePayload, len(symbols))
		unreachable int
		lastErr     error
	)

	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for _, sym := range symbols {
		g.Go(func() error {
			q, err := c.GetQuote(ctx, sym)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				c.logger.Warn("failed to fetch quote", "symbol", sym, "error", err)
				out[sym] = model.NewErrorPayload(sym, err, c.now())
				if isUnreachable(err) {
					unreachable++
					lastErr = err
				}
				return nil
			}
			out[sym] = model.NewQuotePayload(*q)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(symbols) > 0 && unreachable == len(symbols) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
	}
	return out, nil
}

// isUnreachable separates upstream outages and auth rejections from answers
// about a specific symbol.
func isUnreachable(err error) bool {
	if errors.Is(err, ErrNoData) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable() || apiErr.IsRejected()
	}
	return true
}
