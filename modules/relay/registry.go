package relay

import (
	"sort"
	"sync"
)

// Identity is the verified (user id, display name) pair derived from a signed
// token at handshake. Immutable for a connection's lifetime.
type Identity struct {
	UserID   uint
	Username string
}

// ConnectionRegistry tracks the live set of authenticated connections as two
// consistent views: connection id to identity, and username to the most
// recently registered connection id for that identity. A second connection
// for the same identity overwrites the reverse entry; the older connection
// stays live but is no longer addressable by identity.
type ConnectionRegistry struct {
	mu     sync.RWMutex
	byConn map[string]Identity
	byUser map[string]string
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		byConn: make(map[string]Identity),
		byUser: make(map[string]string),
	}
}

// Register inserts the connection into both views.
func (r *ConnectionRegistry) Register(connID string, identity Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byConn[connID] = identity
	r.byUser[identity.Username] = connID
}

// Deregister removes the connection. The reverse entry is removed only if it
// still points at this exact connection, so deregistering a stale connection
// never evicts a newer one for the same identity. Idempotent.
func (r *ConnectionRegistry) Deregister(connID string) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byConn[connID]
	if !ok {
		return Identity{}, false
	}

	delete(r.byConn, connID)
	if r.byUser[identity.Username] == connID {
		delete(r.byUser, identity.Username)
	}
	return identity, true
}

// Identity returns the identity registered for the connection.
func (r *ConnectionRegistry) Identity(connID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.byConn[connID]
	return identity, ok
}

// OnlineUsernames returns the distinct display names with a live reverse
// entry, sorted lexicographically for stable rendering.
func (r *ConnectionRegistry) OnlineUsernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byUser))
	for name := range r.byUser {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
