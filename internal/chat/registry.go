package chat

import "sync"

// Registry is the process-wide map from user id to live connection. It is
// the single source of truth for "who is online now" and the only shared
// mutable structure in the system: connection handlers and the reminder
// dispatcher all go through it. Exactly one connection is tracked per user.
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]*Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[int64]*Conn)}
}

// Register maps a user to a connection, replacing any existing entry.
// Last-registered wins: a fast reconnect displaces the old channel. The
// displaced connection is closed asynchronously so registration never blocks
// on a dying socket while holding the lock.
func (r *Registry) Register(userID int64, conn *Conn) error {
	if conn == nil {
		return ErrNilConn
	}

	r.mu.Lock()
	old := r.conns[userID]
	r.conns[userID] = conn
	r.mu.Unlock()

	if old != nil && old != conn {
		go func() { _ = old.Close() }()
	}
	return nil
}

// Unregister removes the entry for a user only if it still maps to this
// exact connection. A stale close racing a fast reconnect must not evict the
// newer registration.
func (r *Registry) Unregister(userID int64, conn *Conn) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.conns[userID]; ok && current == conn {
		delete(r.conns, userID)
	}
}

// Lookup returns the live connection for a user, if any.
func (r *Registry) Lookup(userID int64) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[userID]
	return conn, ok
}

// Push delivers a frame to a user's connection. Returns ErrNotConnected when
// the user has no live connection; that is a routing outcome, not an error
// condition, and callers decide whether it is worth logging. The registry
// lock is not held across the send.
func (r *Registry) Push(userID int64, v interface{}) error {
	conn, ok := r.Lookup(userID)
	if !ok {
		return ErrNotConnected
	}
	return conn.SendJSON(v)
}

// Count reports how many users currently hold a live connection.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
