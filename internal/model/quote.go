package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Quote is a point-in-time price snapshot for one symbol.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Volume        int64   `json:"volume"`
	Change        float64 `json:"change"`         // Price - Open
	ChangePercent float64 `json:"change_percent"` // Change / Open * 100
	Timestamp     string  `json:"timestamp"`

	// Optional fundamentals, null when the upstream does not report them.
	MarketCap     *float64 `json:"market_cap"`
	PERatio       *float64 `json:"pe_ratio"`
	FiftyTwoWkHi  *float64 `json:"52_week_high"`
	FiftyTwoWkLo  *float64 `json:"52_week_low"`
	AverageVolume *int64   `json:"avg_volume"`
}

// QuoteError marks a symbol whose fetch failed during a poll.
type QuoteError struct {
	Symbol    string `json:"symbol"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// QuotePayload is the per-symbol fetch result: exactly one of Quote or Err is set.
type QuotePayload struct {
	Quote *Quote
	Err   *QuoteError
}

// NewQuotePayload wraps a successful quote.
func NewQuotePayload(q Quote) QuotePayload {
	return QuotePayload{Quote: &q}
}

// NewErrorPayload builds the error-shaped payload for a symbol.
func NewErrorPayload(symbol string, err error, at time.Time) QuotePayload {
	return QuotePayload{Err: &QuoteError{
		Symbol:    symbol,
		Error:     err.Error(),
		Timestamp: Timestamp(at),
	}}
}

// IsError reports whether the payload carries an error marker.
func (p QuotePayload) IsError() bool {
	return p.Err != nil
}

// IsQuote reports whether the payload carries a usable quote. A zero payload is
// neither a quote nor an error.
func (p QuotePayload) IsQuote() bool {
	return p.Err == nil && p.Quote != nil
}

// MarshalJSON encodes whichever variant is set.
func (p QuotePayload) MarshalJSON() ([]byte, error) {
	if p.Err != nil {
		return json.Marshal(p.Err)
	}
	if p.Quote != nil {
		return json.Marshal(p.Quote)
	}
	return []byte("null"), nil
}

// UnmarshalJSON picks the variant by the presence of an "error" key.
func (p *QuotePayload) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = QuotePayload{}
		return nil
	}

	var shape struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return err
	}

	if shape.Error != nil {
		var qe QuoteError
		if err := json.Unmarshal(data, &qe); err != nil {
			return err
		}
		*p = QuotePayload{Err: &qe}
		return nil
	}

	var q Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return err
	}
	*p = QuotePayload{Quote: &q}
	return nil
}

// Timestamp formats t the way every outbound message carries time.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
