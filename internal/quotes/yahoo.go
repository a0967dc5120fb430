package quotes

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/rickgao/market-stream/internal/model"
)

// ErrNoData is returned when the API has no quote for a symbol.
var ErrNoData = errors.New("no data found")

// QuoteResponse from GET /v7/finance/quote
type QuoteResponse struct {
	QuoteResponse struct {
		Result []APIQuote `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

// APIQuote is one entry of a quote response. Fundamentals are optional.
type APIQuote struct {
	Symbol                   string   `json:"symbol"`
	RegularMarketPrice       float64  `json:"regularMarketPrice"`
	RegularMarketOpen        float64  `json:"regularMarketOpen"`
	RegularMarketDayHigh     float64  `json:"regularMarketDayHigh"`
	RegularMarketDayLow      float64  `json:"regularMarketDayLow"`
	RegularMarketVolume      int64    `json:"regularMarketVolume"`
	RegularMarketTime        int64    `json:"regularMarketTime"`
	MarketCap                *float64 `json:"marketCap"`
	TrailingPE               *float64 `json:"trailingPE"`
	FiftyTwoWeekHigh         *float64 `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow          *float64 `json:"fiftyTwoWeekLow"`
	AverageDailyVolume3Month *float64 `json:"averageDailyVolume3Month"`
}

// ToQuote converts the API shape into a model.Quote stamped with at.
// Change is measured against the session open.
func (q APIQuote) ToQuote(symbol, at string) model.Quote {
	change := q.RegularMarketPrice - q.RegularMarketOpen
	var changePct float64
	if q.RegularMarketOpen != 0 {
		changePct = change / q.RegularMarketOpen * 100
	}

	var avgVolume *int64
	if q.AverageDailyVolume3Month != nil {
		v := int64(*q.AverageDailyVolume3Month)
		avgVolume = &v
	}

	return model.Quote{
		Symbol:        symbol,
		Price:         q.RegularMarketPrice,
		Open:          q.RegularMarketOpen,
		High:          q.RegularMarketDayHigh,
		Low:           q.RegularMarketDayLow,
		Volume:        q.RegularMarketVolume,
		Change:        change,
		ChangePercent: changePct,
		Timestamp:     at,
		MarketCap:     q.MarketCap,
		PERatio:       q.TrailingPE,
		FiftyTwoWkHi:  q.FiftyTwoWeekHigh,
		FiftyTwoWkLo:  q.FiftyTwoWeekLow,
		AverageVolume: avgVolume,
	}
}

// GetQuote fetches the latest quote for one symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	query := url.Values{}
	query.Set("symbols", symbol)

	var resp QuoteResponse
	if err := c.get(ctx, "/v7/finance/quote", query, &resp); err != nil {
		return nil, err
	}

	if e := resp.QuoteResponse.Error; e != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrNoData, e.Code, e.Description)
	}
	for _, r := range resp.QuoteResponse.Result {
		if model.NormalizeSymbol(r.Symbol) == symbol {
			q := r.ToQuote(symbol, model.Timestamp(c.now()))
			return &q, nil
		}
	}
	return nil, fmt.Errorf("%w for %s", ErrNoData, symbol)
}
