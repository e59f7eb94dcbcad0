package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fabfab/docchat/corpus"
	"github.com/fabfab/docchat/gateway"
	"github.com/fabfab/docchat/knowledge"
	"github.com/fabfab/docchat/session"
	"github.com/fabfab/docchat/transcript"
)

type stubCollaborator struct {
	reply session.Reply
	err   error
}

func (s *stubCollaborator) Chat(ctx context.Context, query string, history []session.Turn) (session.Reply, error) {
	return s.reply, s.err
}

type stubSource struct {
	files []gateway.InputFile
}

func (s *stubSource) LastChange(ctx context.Context) (time.Time, error) {
	return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), nil
}

func (s *stubSource) InputFiles(ctx context.Context) ([]gateway.InputFile, error) {
	return s.files, nil
}

type stubTranscripts struct {
	entries []transcript.Entry
}

func (s *stubTranscripts) Exchanges(ctx context.Context, sessionID string, limit int) ([]transcript.Entry, error) {
	return s.entries, nil
}

type stubCitations struct {
	err error
}

func (s *stubCitations) MostCited(ctx context.Context, limit int) ([]knowledge.CitedDocument, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []knowledge.CitedDocument{{Name: "readme.md", Count: 3}}, nil
}

var (
	_ TranscriptReader = (*stubTranscripts)(nil)
	_ CitationReader   = (*stubCitations)(nil)
)

func newTestServer(t *testing.T, collab session.Collaborator, opts Options) *httptest.Server {
	t.Helper()
	logger := zaptest.NewLogger(t)
	ctrl := session.NewController(collab, nil, logger)
	opts.Registry = session.NewRegistry(ctrl)
	opts.Controller = ctrl
	if opts.Poller == nil {
		opts.Poller = corpus.NewPoller(&stubSource{}, logger)
	}
	opts.Logger = logger

	srv := httptest.NewServer(New(opts))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string, dst any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if dst != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubCollaborator{}, Options{})
	var body statusResponse
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/healthz", "", &body))
	assert.Equal(t, "ok", body.Message)
}

func TestChatFlow(t *testing.T) {
	srv := newTestServer(t, &stubCollaborator{reply: session.Reply{
		Answer:       "They are in the synced folder.",
		Sources:      []session.SourceDocument{{Name: "readme.md"}},
		SourcesKnown: true,
	}}, Options{})

	var created sessionResponse
	require.Equal(t, http.StatusCreated, doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", "", &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, session.StateSeeded, created.State)
	assert.Equal(t, session.SeedHistory(), created.History)

	var reply messageResponse
	status := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions/"+created.ID+"/messages", `{"text":"Where are the files?"}`, &reply)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, session.OutcomeAnswered, reply.Outcome)
	require.Len(t, reply.Session.History, 4)
	assert.Equal(t,
		"They are in the synced folder.\n\nDocuments looked up to obtain this answer: `readme.md`",
		reply.Session.History[3].Content)

	var fetched sessionResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/v1/sessions/"+created.ID, "", &fetched))
	assert.Equal(t, session.StateAnswered, fetched.State)
	assert.False(t, fetched.Busy)

	assert.Equal(t, http.StatusNoContent, doJSON(t, http.MethodDelete, srv.URL+"/v1/sessions/"+created.ID, "", nil))
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, srv.URL+"/v1/sessions/"+created.ID, "", nil))
}

func TestMessageValidation(t *testing.T) {
	srv := newTestServer(t, &stubCollaborator{}, Options{})

	var created sessionResponse
	require.Equal(t, http.StatusCreated, doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", "", &created))

	var errBody errorResponse
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, srv.URL+"/v1/sessions/"+created.ID+"/messages", `{"text":"  "}`, &errBody))
	assert.Equal(t, session.ErrEmptyMessage.Error(), errBody.Error)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, srv.URL+"/v1/sessions/"+created.ID+"/messages", `{"question":"x"}`, nil))
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodPost, srv.URL+"/v1/sessions/unknown/messages", `{"text":"x"}`, nil))
}

func TestMessageDegradedWhenCollaboratorFails(t *testing.T) {
	srv := newTestServer(t, &stubCollaborator{err: errors.New("backend down")}, Options{})

	var created sessionResponse
	require.Equal(t, http.StatusCreated, doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", "", &created))

	var reply messageResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/v1/sessions/"+created.ID+"/messages", `{"text":"hi"}`, &reply))
	assert.Equal(t, session.OutcomeDegraded, reply.Outcome)
	assert.Equal(t, session.FallbackAnswer, reply.Session.History[3].Content)
}

func TestCorpusEndpoints(t *testing.T) {
	src := &stubSource{files: []gateway.InputFile{
		{Path: "drive/a.pdf", SeenAt: time.Unix(100, 0)},
		{Path: "drive/b.pdf", SeenAt: time.Unix(200, 0)},
	}}
	logger := zaptest.NewLogger(t)
	srv := newTestServer(t, &stubCollaborator{}, Options{
		Poller:      corpus.NewPoller(src, logger),
		ConnectedTo: "Team Drive",
	})

	var before corpusResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/v1/corpus", "", &before))
	assert.Empty(t, before.Files)
	assert.Equal(t, "Connected to Team Drive. Last document change: unknown.", before.Banner)

	var after corpusResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/v1/corpus/refresh", "", &after))
	require.Len(t, after.Files, 2)
	assert.Equal(t, "b.pdf", after.Files[0].DisplayName)
	assert.False(t, after.ShowStatus)
	assert.Equal(t, "Connected to Team Drive. Last document change: 2024-03-01 10:00:00 UTC.", after.Banner)
}

func TestOptionalEndpoints(t *testing.T) {
	srv := newTestServer(t, &stubCollaborator{}, Options{})
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, srv.URL+"/v1/sessions/abc/exchanges", "", nil))
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, srv.URL+"/v1/corpus/cited", "", nil))

	configured := newTestServer(t, &stubCollaborator{}, Options{
		Transcripts: &stubTranscripts{entries: []transcript.Entry{{ID: "e1", Question: "q"}}},
		Citations:   &stubCitations{},
	})
	var entries []transcript.Entry
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, configured.URL+"/v1/sessions/abc/exchanges", "", &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "q", entries[0].Question)

	var cited []knowledge.CitedDocument
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, configured.URL+"/v1/corpus/cited", "", &cited))
	assert.Equal(t, []knowledge.CitedDocument{{Name: "readme.md", Count: 3}}, cited)
}

func TestRootServesUI(t *testing.T) {
	srv := newTestServer(t, &stubCollaborator{}, Options{})

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	asset, err := http.Get(srv.URL + "/assets/app.js")
	require.NoError(t, err)
	defer asset.Body.Close()
	assert.Equal(t, http.StatusOK, asset.StatusCode)

	missing, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}
