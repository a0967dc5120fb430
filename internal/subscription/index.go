package subscription

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

type set[T comparable] map[T]struct{}

// Index is a bidirectional connection ⇄ symbol mapping. Safe for concurrent use.
type Index struct {
	mu       sync.RWMutex
	bySymbol map[string]set[uuid.UUID]
	byConn   map[uuid.UUID]set[string]
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{
		bySymbol: make(map[string]set[uuid.UUID]),
		byConn:   make(map[uuid.UUID]set[string]),
	}
}

// Add creates an empty entry for a connection. Calling Add for a known connection
// leaves its subscriptions untouched.
func (ix *Index) Add(id uuid.UUID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.byConn[id]; !ok {
		ix.byConn[id] = make(set[string])
	}
}

// Subscribe adds symbols to a connection and returns the ones that were not already
// held. Unknown connections are ignored so a subscribe racing a disconnect cannot
// leave an orphaned entry behind.
func (ix *Index) Subscribe(id uuid.UUID, symbols []string) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	held, ok := ix.byConn[id]
	if !ok {
		return nil
	}

	var added []string
	for _, sym := range symbols {
		if _, dup := held[sym]; dup {
			continue
		}
		held[sym] = struct{}{}

		subs := ix.bySymbol[sym]
		if subs == nil {
			subs = make(set[uuid.UUID])
			ix.bySymbol[sym] = subs
		}
		subs[id] = struct{}{}
		added = append(added, sym)
	}
	return added
}

// Unsubscribe removes symbols from a connection and returns the ones it actually held.
func (ix *Index) Unsubscribe(id uuid.UUID, symbols []string) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	held, ok := ix.byConn[id]
	if !ok {
		return nil
	}

	var removed []string
	for _, sym := range symbols {
		if _, ok := held[sym]; !ok {
			continue
		}
		delete(held, sym)
		ix.dropSubscriberLocked(sym, id)
		removed = append(removed, sym)
	}
	return removed
}

// RemoveConnection drops every subscription a connection holds along with its entry.
// Returns false if the connection was not present.
func (ix *Index) RemoveConnection(id uuid.UUID) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	held, ok := ix.byConn[id]
	if !ok {
		return false
	}
	for sym := range held {
		ix.dropSubscriberLocked(sym, id)
	}
	delete(ix.byConn, id)
	return true
}

// dropSubscriberLocked removes id from a symbol's set and deletes the key once empty.
// Caller must hold the write lock.
func (ix *Index) dropSubscriberLocked(sym string, id uuid.UUID) {
	subs, ok := ix.bySymbol[sym]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(ix.bySymbol, sym)
	}
}

// ActiveSymbols returns the sorted set of symbols with at least one subscriber.
func (ix *Index) ActiveSymbols() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]string, 0, len(ix.bySymbol))
	for sym := range ix.bySymbol {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// SubscribersOf returns a snapshot of the connections subscribed to symbol.
func (ix *Index) SubscribersOf(symbol string) []uuid.UUID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	subs := ix.bySymbol[symbol]
	out := make([]uuid.UUID, 0, len(subs))
	for id := range subs {
		out = append(out, id)
	}
	return out
}

// SymbolsOf returns the sorted symbols a connection holds.
func (ix *Index) SymbolsOf(id uuid.UUID) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	held := ix.byConn[id]
	out := make([]string, 0, len(held))
	for sym := range held {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// SubscriberCount returns the number of connections subscribed to symbol.
func (ix *Index) SubscriberCount(symbol string) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.bySymbol[symbol])
}

// SymbolCounts returns symbol → subscriber count for every active symbol.
func (ix *Index) SymbolCounts() map[string]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make(map[string]int, len(ix.bySymbol))
	for sym, subs := range ix.bySymbol {
		out[sym] = len(subs)
	}
	return out
}

// ConnectionCounts returns connection → number of symbols held.
func (ix *Index) ConnectionCounts() map[uuid.UUID]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make(map[uuid.UUID]int, len(ix.byConn))
	for id, held := range ix.byConn {
		out[id] = len(held)
	}
	return out
}

// Len returns the number of active symbols.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.bySymbol)
}
