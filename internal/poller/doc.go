// Package poller implements the Polling Driver.
//
// The Polling Driver:
//   - Asks the broker for the symbols that currently have subscribers
//   - Skips the tick entirely when nobody is subscribed
//   - Fetches the whole batch in one call, bounded by a timeout
//   - Broadcasts one market_data message per returned symbol
//   - Backs off after a failed fetch and keeps running
//   - Offers successful quotes to the history writer without blocking
package poller
