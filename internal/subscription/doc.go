// Package subscription implements the Subscription Index.
//
// The index is the single source of truth for which connection wants which symbols:
//   - symbol → set of connection IDs (who receives a symbol's updates)
//   - connection ID → set of symbols (what a connection asked for)
//
// Both maps are mutated together under one lock, so readers never observe only one
// side of a change. A symbol key exists only while at least one connection holds it,
// which makes ActiveSymbols the exact set of symbols worth polling.
package subscription
