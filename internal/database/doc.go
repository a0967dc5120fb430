// Package database provides the TimescaleDB connection pool for quote history.
//
// The database is optional; when configured, every successful quote the
// polling driver dispatches is appended to the quotes hypertable.
package database
