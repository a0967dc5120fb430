// Package model defines the shared data types that travel between the quote source,
// the polling driver, the broker and connected clients.
//
// Conventions:
//   - Symbols: uppercase, whitespace-trimmed ticker strings
//   - Prices: float64 in the instrument's quote currency
//   - Wire timestamps: RFC 3339 (ISO 8601) in UTC with nanosecond precision
package model
