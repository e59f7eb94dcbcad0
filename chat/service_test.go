package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fabfab/docchat/gateway"
	"github.com/fabfab/docchat/llm"
	"github.com/fabfab/docchat/session"
)

type stubRetriever struct {
	docs    []gateway.Document
	err     error
	queries []string
	k       int
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, k int) ([]gateway.Document, error) {
	s.queries = append(s.queries, query)
	s.k = k
	if s.err != nil {
		return nil, s.err
	}
	return s.docs, nil
}

var _ Retriever = (*stubRetriever)(nil)

// stubLLM answers condense prompts with condensed and everything else with
// answer.
type stubLLM struct {
	answer    string
	condensed string
	err       error
	calls     [][]llm.Message
}

func (s *stubLLM) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	s.calls = append(s.calls, messages)
	if s.err != nil {
		return "", s.err
	}
	if len(messages) == 0 {
		return "", errors.New("no messages provided")
	}
	if strings.Contains(messages[len(messages)-1].Content, "Standalone question:") {
		return s.condensed, nil
	}
	return s.answer, nil
}

var _ llm.Client = (*stubLLM)(nil)

func TestChatReturnsAnswerWithSources(t *testing.T) {
	retriever := &stubRetriever{docs: []gateway.Document{
		{Text: "Files live in the synced folder.", Metadata: map[string]any{"path": "drive/readme.md"}},
		{Text: "Other", Metadata: map[string]any{"name": "notes.txt"}},
	}}
	model := &stubLLM{answer: "  They are in the synced folder.  "}
	svc := NewService(retriever, model, Config{RetrieveK: 2}, zap.NewNop())

	reply, err := svc.Chat(context.Background(), "Where are the files?", nil)
	require.NoError(t, err)
	assert.Equal(t, "They are in the synced folder.", reply.Answer)
	assert.True(t, reply.SourcesKnown)
	assert.Equal(t, []session.SourceDocument{{Path: "drive/readme.md"}, {Name: "notes.txt"}}, reply.Sources)

	// no history means no condense step
	require.Len(t, model.calls, 1)
	assert.Equal(t, []string{"Where are the files?"}, retriever.queries)
	assert.Equal(t, 2, retriever.k)

	system := model.calls[0][0]
	assert.Equal(t, llm.RoleSystem, system.Role)
	assert.Contains(t, system.Content, DefaultSystemPrompt)
	assert.Contains(t, system.Content, "Files live in the synced folder.")
}

func TestChatCondensesFollowUp(t *testing.T) {
	retriever := &stubRetriever{docs: []gateway.Document{}}
	model := &stubLLM{answer: "It streams.", condensed: "How does Pathway handle streaming?"}
	svc := NewService(retriever, model, Config{}, nil)

	history := session.SeedHistory()
	reply, err := svc.Chat(context.Background(), "How does it stream?", history)
	require.NoError(t, err)
	assert.Equal(t, "It streams.", reply.Answer)
	assert.True(t, reply.SourcesKnown)
	assert.Empty(t, reply.Sources)

	require.Len(t, model.calls, 2)
	assert.Equal(t, []string{"How does Pathway handle streaming?"}, retriever.queries)
	assert.Equal(t, defaultRetrieveK, retriever.k)

	final := model.calls[1]
	require.Len(t, final, len(history)+2)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "What is Pathway?"}, final[1])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "How does it stream?"}, final[len(final)-1])
}

func TestChatRetrievalFailureAnswersWithoutSources(t *testing.T) {
	retriever := &stubRetriever{err: errors.New("connection refused")}
	model := &stubLLM{answer: "General answer."}
	svc := NewService(retriever, model, Config{}, nil)

	reply, err := svc.Chat(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "General answer.", reply.Answer)
	assert.False(t, reply.SourcesKnown)
	assert.Nil(t, reply.Sources)
}

func TestChatLLMFailure(t *testing.T) {
	svc := NewService(&stubRetriever{}, &stubLLM{err: errors.New("rate limited")}, Config{}, nil)

	_, err := svc.Chat(context.Background(), "q", nil)
	require.ErrorContains(t, err, "rate limited")
}

func TestChatValidatesQuestion(t *testing.T) {
	svc := NewService(&stubRetriever{}, &stubLLM{}, Config{}, nil)
	_, err := svc.Chat(context.Background(), "   ", nil)
	require.Error(t, err)
}

func TestChatThroughController(t *testing.T) {
	retriever := &stubRetriever{docs: []gateway.Document{
		{Metadata: map[string]any{"path": "a/b/x.pdf"}},
		{Metadata: map[string]any{"name": "x.pdf"}},
		{Metadata: map[string]any{"path": "c/y.pdf"}},
	}}
	svc := NewService(retriever, &stubLLM{answer: "Answer.", condensed: "q"}, Config{}, nil)
	ctrl := session.NewController(svc, nil, nil)

	s := &session.Session{}
	ctrl.Initialize(s)
	require.NoError(t, ctrl.SubmitUserMessage(s, "Which files?"))
	outcome, err := ctrl.Reconcile(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeAnswered, outcome)

	history := s.History()
	assert.Equal(t, "Answer.\n\nDocuments looked up to obtain this answer: `x.pdf`, `y.pdf`", history[len(history)-1].Content)
}
