package realtime

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// ErrDuplicateConnection is returned when a connection id is registered twice.
var ErrDuplicateConnection = errors.New("connection already registered")

type registryEntry struct {
	session Session
	seq     uint64
}

// Registry is the live roster: connection id to session. It is the only
// shared mutable state of the realtime layer and is mutated by the Gateway alone.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]registryEntry
	nextSeq  uint64
}

// NewRegistry creates an empty roster.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]registryEntry)}
}

// Register adds a session under its connection id.
func (r *Registry) Register(connectionID string, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[connectionID]; exists {
		return fmt.Errorf("register %s: %w", connectionID, ErrDuplicateConnection)
	}
	r.nextSeq++
	r.sessions[connectionID] = registryEntry{session: s, seq: r.nextSeq}
	return nil
}

// Unregister removes a connection. Removing an unknown id is a no-op; the
// result reports whether anything was removed.
func (r *Registry) Unregister(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[connectionID]; !exists {
		return false
	}
	delete(r.sessions, connectionID)
	return true
}

// Snapshot returns one entry per live connection in registration order.
func (r *Registry) Snapshot() []RosterEntry {
	r.mu.RLock()
	entries := make([]registryEntry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	return lo.Map(entries, func(e registryEntry, _ int) RosterEntry {
		return RosterEntry{ID: e.session.AccountID, Username: e.session.Username, Role: e.session.Role}
	})
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
