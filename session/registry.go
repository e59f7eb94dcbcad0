package session

import (
	"sync"
	"time"
)

// Registry keeps the live sessions of a server process in memory. Sessions
// do not survive a restart.
type Registry struct {
	controller *Controller

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(controller *Controller) *Registry {
	return &Registry{
		controller: controller,
		sessions:   make(map[string]*Session),
	}
}

// Create initializes and stores a new session.
func (r *Registry) Create() *Session {
	s := &Session{}
	r.controller.Initialize(s)

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete tears a session down. It reports whether the session existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Prune drops idle sessions last active before cutoff. Sessions with a
// reconciliation in flight are kept.
func (r *Registry) Prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if s.Busy() || !s.LastActive().Before(cutoff) {
			continue
		}
		delete(r.sessions, id)
		removed++
	}
	return removed
}
