// Package session owns chat sessions and mediates every exchange between a
// user and the answering collaborator.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	seedQuestion = "What is Pathway?"
	seedAnswer   = "Pathway is a high-throughput, low-latency data processing framework that handles live data & streaming for you."

	// FallbackAnswer is used when the collaborator failed without producing
	// any answer text.
	FallbackAnswer = "Sorry, I could not look up an answer right now. Please try again in a moment."
)

var errEmptyAnswer = errors.New("collaborator returned an empty answer")

// SeedHistory returns the two turns every new session starts with.
func SeedHistory() []Turn {
	return []Turn{
		{Role: RoleUser, Content: seedQuestion},
		{Role: RoleAssistant, Content: seedAnswer},
	}
}

type Controller struct {
	collaborator Collaborator
	recorder     Recorder
	logger       *zap.Logger
	now          func() time.Time
}

// NewController builds a controller. recorder may be nil.
func NewController(collaborator Collaborator, recorder Recorder, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		collaborator: collaborator,
		recorder:     recorder,
		logger:       logger,
		now:          time.Now,
	}
}

// Initialize seeds an empty session and assigns its ID. It does nothing for
// a session that already has one.
func (c *Controller) Initialize(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id != "" {
		return
	}
	s.id = uuid.NewString()
	s.history = SeedHistory()
	s.seedLen = len(s.history)
	s.lastActive = c.now()
	c.logger.Debug("session initialized", zap.String("session", s.id))
}

// SubmitUserMessage appends a user turn. The answer is produced by the next
// Reconcile. A session holds at most one unanswered user turn: submitting
// again before Reconcile has answered returns ErrReplyPending, even when no
// Reconcile is running yet.
func (c *Controller) SubmitUserMessage(s *Session, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == "" {
		return ErrNotInitialized
	}
	if s.reconciling || s.pendingLocked() {
		return ErrReplyPending
	}
	s.history = append(s.history, Turn{Role: RoleUser, Content: text})
	s.lastActive = c.now()
	return nil
}

// Reconcile answers the trailing user turn, if any. Exactly one assistant
// turn is appended per pending user turn, whether the collaborator succeeds
// or not. A call made while another one is in flight for the same session
// returns OutcomeInFlight without touching the history.
func (c *Controller) Reconcile(ctx context.Context, s *Session) (Outcome, error) {
	s.mu.Lock()
	if s.id == "" {
		s.mu.Unlock()
		return "", ErrNotInitialized
	}
	if s.reconciling {
		s.mu.Unlock()
		return OutcomeInFlight, nil
	}
	if !s.pendingLocked() {
		s.mu.Unlock()
		return OutcomeNothingPending, nil
	}
	s.reconciling = true
	sessionID := s.id
	question := s.history[len(s.history)-1].Content
	prior := make([]Turn, len(s.history)-1)
	copy(prior, s.history[:len(s.history)-1])
	s.mu.Unlock()

	started := c.now()
	reply, chatErr := c.ask(ctx, question, prior)
	content, citations, outcome, failure := compose(reply, chatErr)

	s.mu.Lock()
	s.history = append(s.history, Turn{Role: RoleAssistant, Content: content})
	s.reconciling = false
	s.lastActive = c.now()
	s.mu.Unlock()

	exchange := Exchange{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Question:  question,
		Answer:    content,
		Citations: citations,
		Outcome:   outcome,
		Failure:   failure,
		StartedAt: started,
		Duration:  c.now().Sub(started),
	}
	c.observe(ctx, exchange)
	return outcome, nil
}

func (c *Controller) ask(ctx context.Context, question string, prior []Turn) (reply Reply, err error) {
	if c.collaborator == nil {
		return Reply{}, fmt.Errorf("no chat collaborator configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chat collaborator panicked: %v", r)
		}
	}()
	return c.collaborator.Chat(ctx, question, prior)
}

func compose(reply Reply, chatErr error) (string, []Citation, Outcome, error) {
	answer := strings.TrimSpace(reply.Answer)
	if chatErr != nil {
		if answer == "" {
			return FallbackAnswer, nil, OutcomeDegraded, chatErr
		}
		return answer, nil, OutcomeDegraded, chatErr
	}
	if answer == "" {
		return FallbackAnswer, nil, OutcomeDegraded, errEmptyAnswer
	}

	result := ExtractCitations(reply)
	if result.Err != nil {
		return answer, nil, OutcomeDegraded, result.Err
	}
	return ComposeAnswer(answer, result.Citations), result.Citations, OutcomeAnswered, nil
}

func (c *Controller) observe(ctx context.Context, exchange Exchange) {
	fields := []zap.Field{
		zap.String("session", exchange.SessionID),
		zap.String("outcome", string(exchange.Outcome)),
		zap.Int("citations", len(exchange.Citations)),
		zap.Duration("duration", exchange.Duration),
	}
	if exchange.Failure != nil {
		c.logger.Warn("chat reply degraded", append(fields, zap.Error(exchange.Failure))...)
	} else {
		c.logger.Info("chat reply", fields...)
	}

	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(context.WithoutCancel(ctx), exchange); err != nil {
		c.logger.Warn("record exchange", zap.String("session", exchange.SessionID), zap.Error(err))
	}
}
