// Package server keeps the set of registered sessions in the Registry, the
// only structure mutated by more than one goroutine.
package server

import (
	"sort"
	"sync"
)

// Registry maps identities to active sessions. All synchronization for the
// shared session set lives here.
type Registry struct {
	mu       sync.RWMutex
	sessions map[Identity]*Session
	nextSlot uint64
	pairing  Pairing
	closed   bool
}

// NewRegistry creates an empty registry that hands out identities through p.
func NewRegistry(p Pairing) *Registry {
	if p == nil {
		p = TwoParty{}
	}
	return &Registry{
		sessions: make(map[Identity]*Session),
		pairing:  p,
	}
}

// Register assigns the next identity to s and stores it. The join counter
// advances even when no identity is available.
func (r *Registry) Register(s *Session) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrServerClosed
	}

	slot := r.nextSlot
	r.nextSlot++

	id, err := r.pairing.Assign(slot, func(candidate Identity) bool {
		_, taken := r.sessions[candidate]
		return taken
	})
	if err != nil {
		return 0, err
	}

	s.identity = id
	r.sessions[id] = s
	return id, nil
}

// Lookup returns the session currently holding id.
func (r *Registry) Lookup(id Identity) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	return s, ok
}

// Remove drops s. Removing an absent session, or one whose identity has
// since been reassigned, is a no-op.
func (r *Registry) Remove(s *Session) bool {
	if s == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[s.identity]
	if !ok || current != s {
		return false
	}
	delete(r.sessions, s.identity)
	return true
}

// Snapshot returns a point-in-time copy of the registered sessions ordered by
// identity.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].identity < sessions[j].identity
	})
	return sessions
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close empties the registry and refuses further registrations. It returns
// the sessions that were registered, ordered by identity.
func (r *Registry) Close() []*Session {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, id)
	}
	r.closed = true
	r.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].identity < sessions[j].identity
	})
	return sessions
}
