// Package writer implements the batch writer for quote history.
//
// QuoteWriter takes quotes from the polling driver through a bounded,
// non-blocking queue and appends them to the TimescaleDB quotes table in
// batches. Rows are append-only; a repeated (symbol, ts) is skipped.
package writer
