// Package quotes fetches market quotes from a Yahoo-style REST endpoint.
//
// Client.Fetch satisfies the polling driver's fetch contract: it queries every
// symbol concurrently, turns per-symbol failures into error payloads, and only
// returns an error when the batch as a whole could not be served.
//
// CachedFetcher wraps any Fetcher with a Redis copy of the last good quote per
// symbol, served in place of a per-symbol failure while it is fresh.
package quotes
