package connection

import (
	"sync"
	"time"
)

// entry is the registry's bookkeeping for one connection.
type entry struct {
	conn         Conn
	connectedAt  time.Time
	lastActivity time.Time
	messageCount int64
}

// Registry tracks live connections. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[ID]*entry

	now func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[ID]*entry),
		now:   time.Now,
	}
}

// Register adds a connection with zeroed activity counters.
func (r *Registry) Register(id ID, conn Conn) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &entry{
		conn:         conn,
		connectedAt:  now,
		lastActivity: now,
	}
}

// Deregister removes a connection. Only the first call for an ID returns the handle
// and true; every later call returns false.
func (r *Registry) Deregister(id ID) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	delete(r.conns, id)
	return e.conn, true
}

// Touch records a successful send.
func (r *Registry) Touch(id ID) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.lastActivity = now
		e.messageCount++
	}
}

// Get returns the transport for a live connection.
func (r *Registry) Get(id ID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Snapshot returns a copy of every live connection handle.
func (r *Registry) Snapshot() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handle, 0, len(r.conns))
	for id, e := range r.conns {
		out = append(out, Handle{ID: id, Conn: e.conn})
	}
	return out
}

// Resolve maps IDs to live handles, skipping IDs that are no longer registered.
func (r *Registry) Resolve(ids []ID) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handle, 0, len(ids))
	for _, id := range ids {
		if e, ok := r.conns[id]; ok {
			out = append(out, Handle{ID: id, Conn: e.conn})
		}
	}
	return out
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Stats returns per-connection metadata.
func (r *Registry) Stats() []ConnStats {
	now := r.now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ConnStats, 0, len(r.conns))
	for id, e := range r.conns {
		out = append(out, ConnStats{
			ID:                id,
			ConnectedAt:       e.connectedAt,
			LastActivity:      e.lastActivity,
			ConnectedDuration: now.Sub(e.connectedAt).Seconds(),
			MessageCount:      e.messageCount,
		})
	}
	return out
}
