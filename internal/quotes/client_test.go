package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("")

		if c.baseURL != DefaultBaseURL {
			t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
		}
		if c.httpClient.Timeout != 10*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 10*time.Second)
		}
		if c.concurrency != 8 {
			t.Errorf("concurrency = %d, want 8", c.concurrency)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		c := NewClient("http://localhost",
			WithTimeout(3*time.Second),
			WithRetries(5, time.Millisecond),
			WithConcurrency(2),
		)
		if c.httpClient.Timeout != 3*time.Second {
			t.Errorf("Timeout = %v", c.httpClient.Timeout)
		}
		if c.maxRetries != 5 || c.retryBackoff != time.Millisecond {
			t.Errorf("retries = %d/%v", c.maxRetries, c.retryBackoff)
		}
		if c.concurrency != 2 {
			t.Errorf("concurrency = %d, want 2", c.concurrency)
		}
	})

	t.Run("non-positive concurrency ignored", func(t *testing.T) {
		c := NewClient("http://localhost", WithConcurrency(0))
		if c.concurrency != 8 {
			t.Errorf("concurrency = %d, want 8", c.concurrency)
		}
	})
}

func TestAPIError_IsRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{400, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		e := &APIError{StatusCode: tt.status}
		if got := e.IsRetryable(); got != tt.want {
			t.Errorf("IsRetryable(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestAPIError_IsRejected(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{400, false},
		{401, true},
		{403, true},
		{404, false},
		{429, false},
	}
	for _, tt := range tests {
		e := &APIError{StatusCode: tt.status}
		if got := e.IsRejected(); got != tt.want {
			t.Errorf("IsRejected(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

// quoteServer answers /v7/finance/quote from a symbol table; unknown symbols get an
// empty result.
func quoteServer(t *testing.T, quotes map[string]APIQuote) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v7/finance/quote" {
			http.NotFound(w, r)
			return
		}
		var resp QuoteResponse
		if q, ok := quotes[r.URL.Query().Get("symbols")]; ok {
			resp.QuoteResponse.Result = []APIQuote{q}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func ptr[T any](v T) *T { return &v }

func TestClient_GetQuote(t *testing.T) {
	server := quoteServer(t, map[string]APIQuote{
		"AAPL": {
			Symbol:                   "AAPL",
			RegularMarketPrice:       110,
			RegularMarketOpen:        100,
			RegularMarketDayHigh:     112,
			RegularMarketDayLow:      99,
			RegularMarketVolume:      1000,
			MarketCap:                ptr(3e12),
			AverageDailyVolume3Month: ptr(5e7),
		},
	})

	c := NewClient(server.URL)
	c.now = func() time.Time { return time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC) }

	q, err := c.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}

	if q.Price != 110 || q.Open != 100 || q.High != 112 || q.Low != 99 || q.Volume != 1000 {
		t.Errorf("quote = %+v", q)
	}
	if q.Change != 10 {
		t.Errorf("Change = %v, want 10", q.Change)
	}
	if q.ChangePercent != 10 {
		t.Errorf("ChangePercent = %v, want 10", q.ChangePercent)
	}
	if q.Timestamp != "2024-01-02T15:04:05Z" {
		t.Errorf("Timestamp = %q", q.Timestamp)
	}
	if q.MarketCap == nil || *q.MarketCap != 3e12 {
		t.Errorf("MarketCap = %v", q.MarketCap)
	}
	if q.AverageVolume == nil || *q.AverageVolume != 50_000_000 {
		t.Errorf("AverageVolume = %v", q.AverageVolume)
	}
	if q.PERatio != nil {
		t.Errorf("PERatio = %v, want nil", *q.PERatio)
	}
}

func TestClient_GetQuoteNoData(t *testing.T) {
	server := quoteServer(t, nil)
	c := NewClient(server.URL)

	_, err := c.GetQuote(context.Background(), "ZZZZ")
	if !errors.Is(err, ErrNoData) {
		t.Errorf("GetQuote = %v, want ErrNoData", err)
	}
}

func TestClient_Retry(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"quoteResponse": map[string]any{
				"result": []map[string]any{{"symbol": "MSFT", "regularMarketPrice": 400.0}},
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, WithRetries(3, time.Millisecond))

	q, err := c.GetQuote(context.Background(), "MSFT")
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}
	if q.Price != 400 {
		t.Errorf("Price = %v, want 400", q.Price)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewClient(server.URL, WithRetries(3, time.Millisecond))

	_, err := c.GetQuote(context.Background(), "AAPL")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("GetQuote = %v, want 400 APIError", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestClient_FetchPartial(t *testing.T) {
	server := quoteServer(t, map[string]APIQuote{
		"AAPL": {Symbol: "AAPL", RegularMarketPrice: 190, RegularMarketOpen: 189},
		"MSFT": {Symbol: "MSFT", RegularMarketPrice: 410, RegularMarketOpen: 400},
	})
	c := NewClient(server.URL, WithConcurrency(2))

	got, err := c.Fetch(context.Background(), []string{"AAPL", "MSFT", "ZZZZ"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d payloads, want 3", len(got))
	}
	if got["AAPL"].IsError() || got["AAPL"].Quote.Price != 190 {
		t.Errorf("AAPL = %+v", got["AAPL"])
	}
	if got["MSFT"].IsError() || got["MSFT"].Quote.Price != 410 {
		t.Errorf("MSFT = %+v", got["MSFT"])
	}
	zzzz := got["ZZZZ"]
	if !zzzz.IsError() {
		t.Fatalf("ZZZZ = %+v, want error payload", zzzz)
	}
	if zzzz.Err.Symbol != "ZZZZ" || !strings.Contains(zzzz.Err.Error, "no data found") {
		t.Errorf("ZZZZ error = %+v", zzzz.Err)
	}
}

func TestClient_FetchUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(server.URL, WithRetries(0, time.Millisecond))

	_, err := c.Fetch(context.Background(), []string{"AAPL", "MSFT"})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Fetch = %v, want ErrUnavailable", err)
	}
}

func TestClient_FetchRejected(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"unauthorized", http.StatusUnauthorized, true},
		{"forbidden", http.StatusForbidden, true},
		{"bad request", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			c := NewClient(server.URL, WithRetries(3, time.Millisecond))

			got, err := c.Fetch(context.Background(), []string{"AAPL", "MSFT"})
			if tt.wantErr {
				if !errors.Is(err, ErrUnavailable) {
					t.Errorf("Fetch = %v, want ErrUnavailable", err)
				}
			} else {
				if err != nil {
					t.Fatalf("Fetch = %v, want per-symbol errors", err)
				}
				if !got["AAPL"].IsError() || !got["MSFT"].IsError() {
					t.Errorf("payloads = %+v, want error payloads", got)
				}
			}
			if n := attempts.Load(); n != 2 {
				t.Errorf("attempts = %d, want one per symbol", n)
			}
		})
	}
}

func TestClient_FetchCancelled(t *testing.T) {
	server := quoteServer(t, nil)
	c := NewClient(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Fetch(ctx, []string{"AAPL"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch = %v, want context.Canceled", err)
	}
}
