package server

import "sync"

// Registry is the in-memory session table keyed by connection id. It is
// the only process-wide mutable state in the gateway. Entries only exist
// for connections that completed a LOGIN.
//
// Per-connection message handling is sequential, so each entry has a
// single writer; the mutex covers cross-connection reads (KILL, broadcast)
// which read-then-act without assuming exclusivity.
type Registry struct {
	mtx      sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register stores the session for a connection.
func (r *Registry) Register(id string, s *Session) {
	r.mtx.Lock()
	r.sessions[id] = s
	r.mtx.Unlock()
}

// Lookup returns the session for a connection, if any.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mtx.RLock()
	s, ok := r.sessions[id]
	r.mtx.RUnlock()
	return s, ok
}

// Update applies fn to the connection's session while holding the lock.
// A missing entry is a no-op.
func (r *Registry) Update(id string, fn func(*Session)) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if s, ok := r.sessions[id]; ok {
		fn(s)
	}
}

// Remove deletes and returns the connection's session.
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// FindByUsername returns the first session with the given username.
func (r *Registry) FindByUsername(name string) (string, *Session, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	for id, s := range r.sessions {
		if s.Username == name {
			return id, s, true
		}
	}
	return "", nil, false
}

// ForEach calls fn for a snapshot of the registered sessions. fn runs
// outside the lock so it may send, dispatch or mutate freely.
func (r *Registry) ForEach(fn func(id string, s *Session)) {
	type entry struct {
		id string
		s  *Session
	}
	r.mtx.RLock()
	entries := make([]entry, 0, len(r.sessions))
	for id, s := range r.sessions {
		entries = append(entries, entry{id, s})
	}
	r.mtx.RUnlock()

	for _, e := range entries {
		fn(e.id, e.s)
	}
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return len(r.sessions)
}
