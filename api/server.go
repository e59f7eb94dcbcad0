package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fabfab/docchat/corpus"
	"github.com/fabfab/docchat/knowledge"
	"github.com/fabfab/docchat/session"
	"github.com/fabfab/docchat/transcript"
)

const maxBodyBytes = 1 << 20

// TranscriptReader lists the stored exchanges of a session.
type TranscriptReader interface {
	Exchanges(ctx context.Context, sessionID string, limit int) ([]transcript.Entry, error)
}

// CitationReader reports the most cited documents.
type CitationReader interface {
	MostCited(ctx context.Context, limit int) ([]knowledge.CitedDocument, error)
}

type Options struct {
	Registry   *session.Registry
	Controller *session.Controller
	Poller     *corpus.Poller
	// Transcripts and Citations are optional.
	Transcripts TranscriptReader
	Citations   CitationReader
	ConnectedTo string
	Logger      *zap.Logger
}

// Server exposes the chat sessions and the corpus status over HTTP and
// serves the single page UI.
type Server struct {
	registry    *session.Registry
	controller  *session.Controller
	poller      *corpus.Poller
	transcripts TranscriptReader
	citations   CitationReader
	connectedTo string
	logger      *zap.Logger
	handler     http.Handler
}

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Message string `json:"message"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type sessionResponse struct {
	ID      string         `json:"id"`
	State   session.State  `json:"state"`
	Busy    bool           `json:"busy"`
	History []session.Turn `json:"history"`
}

type messageResponse struct {
	Session sessionResponse `json:"session"`
	Outcome session.Outcome `json:"outcome"`
}

type corpusResponse struct {
	Banner       string        `json:"banner"`
	LastChangeAt *time.Time    `json:"lastChangeAt,omitempty"`
	ShowStatus   bool          `json:"showStatus"`
	Files        []corpus.File `json:"files"`
	RefreshedAt  time.Time     `json:"refreshedAt"`
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		registry:    opts.Registry,
		controller:  opts.Controller,
		poller:      opts.Poller,
		transcripts: opts.Transcripts,
		citations:   opts.Citations,
		connectedTo: opts.ConnectedTo,
		logger:      logger,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.Handle("GET /assets/", s.staticHandler())

	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /v1/sessions/{id}/messages", s.handleMessage)
	mux.HandleFunc("GET /v1/sessions/{id}/exchanges", s.handleExchanges)

	mux.HandleFunc("GET /v1/corpus", s.handleCorpus)
	mux.HandleFunc("POST /v1/corpus/refresh", s.handleCorpusRefresh)
	mux.HandleFunc("GET /v1/corpus/cited", s.handleCited)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, statusResponse{Message: "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.registry.Create()
	s.logger.Info("session created", zap.String("session", sess.ID()))
	s.writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.registry.Delete(id) {
		s.writeError(w, http.StatusNotFound, session.ErrNotFound)
		return
	}
	s.logger.Info("session closed", zap.String("session", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if err := s.controller.SubmitUserMessage(sess, req.Text); err != nil {
		switch {
		case errors.Is(err, session.ErrEmptyMessage):
			s.writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, session.ErrReplyPending):
			s.writeError(w, http.StatusConflict, err)
		default:
			s.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	// The reply is produced even when the client goes away mid-request so
	// the session does not stay waiting for one.
	outcome, err := s.controller.Reconcile(context.WithoutCancel(r.Context()), sess)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("reconcile: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{
		Session: toSessionResponse(sess),
		Outcome: outcome,
	})
}

func (s *Server) handleExchanges(w http.ResponseWriter, r *http.Request) {
	if s.transcripts == nil {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("transcript log is not configured"))
		return
	}
	id := r.PathValue("id")
	entries, err := s.transcripts.Exchanges(r.Context(), id, 50)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("load exchanges: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCorpus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.toCorpusResponse(s.poller.Snapshot()))
}

func (s *Server) handleCorpusRefresh(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.toCorpusResponse(s.poller.Refresh(r.Context())))
}

func (s *Server) handleCited(w http.ResponseWriter, r *http.Request) {
	if s.citations == nil {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("citation graph is not configured"))
		return
	}
	docs, err := s.citations.MostCited(r.Context(), 10)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("load cited documents: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, docs)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) toCorpusResponse(snap corpus.Snapshot) corpusResponse {
	files := snap.Files
	if files == nil {
		files = []corpus.File{}
	}
	return corpusResponse{
		Banner:       snap.Banner(s.connectedTo),
		LastChangeAt: snap.LastChangeAt,
		ShowStatus:   snap.HasStatus(),
		Files:        files,
		RefreshedAt:  snap.RefreshedAt,
	}
}

func toSessionResponse(sess *session.Session) sessionResponse {
	return sessionResponse{
		ID:      sess.ID(),
		State:   sess.State(),
		Busy:    sess.Busy(),
		History: sess.History(),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("api error", zap.Int("status", status), zap.Error(err))
	} else {
		s.logger.Debug("api error", zap.Int("status", status), zap.Error(err))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
