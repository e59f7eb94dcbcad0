package session

import (
	"sync"
	"time"
)

// State is the position of a session in its chat lifecycle.
type State string

const (
	StateEmpty         State = "empty"
	StateSeeded        State = "seeded"
	StateAwaitingReply State = "awaiting_reply"
	StateAnswered      State = "answered"
)

// Session is the chat state of one user. The zero value is an empty session
// that Controller.Initialize turns into a seeded one. A Session must not be
// copied after first use.
type Session struct {
	mu          sync.Mutex
	id          string
	history     []Turn
	seedLen     int
	reconciling bool
	lastActive  time.Time
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// History returns a copy of the turns in chronological order.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.id == "":
		return StateEmpty
	case s.pendingLocked():
		return StateAwaitingReply
	case len(s.history) <= s.seedLen:
		return StateSeeded
	default:
		return StateAnswered
	}
}

// Busy reports whether a reconciliation is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconciling
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) pendingLocked() bool {
	return len(s.history) > 0 && s.history[len(s.history)-1].Role == RoleUser
}
