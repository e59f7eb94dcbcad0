package session

import (
	"context"
	"errors"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one message of a chat history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SourceDocument is a document the collaborator reports as backing an
// answer. Empty fields were not reported.
type SourceDocument struct {
	Path string `json:"path,omitempty"`
	Name string `json:"name,omitempty"`
}

// Reply is the collaborator's answer to one user turn. SourcesKnown is
// false when the collaborator did not report supporting documents at all,
// which is different from reporting an empty list.
type Reply struct {
	Answer       string
	Sources      []SourceDocument
	SourcesKnown bool
}

// Collaborator produces an answer for query given the turns that precede it.
type Collaborator interface {
	Chat(ctx context.Context, query string, history []Turn) (Reply, error)
}

// Recorder receives every completed exchange. Implementations must be safe
// for concurrent use.
type Recorder interface {
	Record(ctx context.Context, exchange Exchange) error
}

// Outcome describes what a call to Reconcile did.
type Outcome string

const (
	OutcomeAnswered       Outcome = "answered"
	OutcomeDegraded       Outcome = "degraded"
	OutcomeNothingPending Outcome = "nothing_pending"
	OutcomeInFlight       Outcome = "in_flight"
)

// Exchange is the record of one reconciled user turn.
type Exchange struct {
	ID        string
	SessionID string
	Question  string
	Answer    string
	Citations []Citation
	Outcome   Outcome
	// Failure is the collaborator or citation error that caused a degraded
	// answer, nil otherwise.
	Failure   error
	StartedAt time.Time
	Duration  time.Duration
}

var (
	ErrEmptyMessage   = errors.New("message must not be empty")
	ErrNotInitialized = errors.New("session is not initialized")
	ErrReplyPending   = errors.New("session is waiting for an assistant reply")
	ErrSourcesMissing = errors.New("collaborator did not report source documents")
	ErrNotFound       = errors.New("session not found")
)
