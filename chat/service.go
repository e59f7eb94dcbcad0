// Package chat answers questions about the synced documents: it rewrites a
// follow-up question into a standalone one, retrieves matching documents from
// the retrieval backend and asks the language model to answer from them.
package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fabfab/docchat/gateway"
	"github.com/fabfab/docchat/llm"
	"github.com/fabfab/docchat/session"
)

const (
	defaultRetrieveK = 3
	maxContextChars  = 2000
)

// DefaultSystemPrompt keeps the model from answering outside the documents.
const DefaultSystemPrompt = "IF QUESTION IS NOT RELATED TO CONTEXT DOCUMENTS, SAY IT'S NOT POSSIBLE TO ANSWER USING PHRASE `The looked-up documents do not provde information about...`"

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]gateway.Document, error)
}

var _ Retriever = (*gateway.Client)(nil)

type Config struct {
	SystemPrompt string
	RetrieveK    int
}

type Service struct {
	retriever Retriever
	llm       llm.Client
	cfg       Config
	logger    *zap.Logger
}

func NewService(retriever Retriever, llmClient llm.Client, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.RetrieveK <= 0 {
		cfg.RetrieveK = defaultRetrieveK
	}

	return &Service{
		retriever: retriever,
		llm:       llmClient,
		cfg:       cfg,
		logger:    logger,
	}
}

var _ session.Collaborator = (*Service)(nil)

// Chat answers question in the context of history. When retrieval fails the
// model still answers, and the reply reports its sources as unknown.
func (s *Service) Chat(ctx context.Context, question string, history []session.Turn) (session.Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return session.Reply{}, fmt.Errorf("question cannot be empty")
	}
	if s.llm == nil {
		return session.Reply{}, fmt.Errorf("llm client is not configured")
	}

	standalone := question
	if len(history) > 0 {
		condensed, err := s.condense(ctx, question, history)
		if err != nil {
			s.logger.Warn("condense question, using it verbatim", zap.Error(err))
		} else {
			standalone = condensed
		}
	}

	sourcesKnown := true
	var docs []gateway.Document
	if s.retriever == nil {
		sourcesKnown = false
	} else {
		retrieved, err := s.retriever.Retrieve(ctx, standalone, s.cfg.RetrieveK)
		if err != nil {
			s.logger.Warn("retrieve documents, answering without context", zap.Error(err))
			sourcesKnown = false
		} else {
			docs = retrieved
		}
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: s.systemMessage(docs)})
	messages = append(messages, toMessages(history)...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question})

	answer, err := s.llm.Generate(ctx, messages)
	if err != nil {
		return session.Reply{}, fmt.Errorf("llm generate: %w", err)
	}

	reply := session.Reply{
		Answer:       strings.TrimSpace(answer),
		SourcesKnown: sourcesKnown,
	}
	if sourcesKnown {
		reply.Sources = make([]session.SourceDocument, 0, len(docs))
		for _, doc := range docs {
			reply.Sources = append(reply.Sources, session.SourceDocument{Path: doc.Path(), Name: doc.Name()})
		}
	}
	return reply, nil
}

func (s *Service) condense(ctx context.Context, question string, history []session.Turn) (string, error) {
	prompt := formatCondensePrompt(question, history)
	condensed, err := s.llm.Generate(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return "", fmt.Errorf("llm condense: %w", err)
	}
	condensed = strings.TrimSpace(condensed)
	if condensed == "" {
		return "", fmt.Errorf("llm returned an empty standalone question")
	}
	return condensed, nil
}

func (s *Service) systemMessage(docs []gateway.Document) string {
	var sb strings.Builder
	sb.WriteString(s.cfg.SystemPrompt)
	sb.WriteString("\n\nThe following is a friendly conversation between a user and an AI assistant. ")
	sb.WriteString("The assistant answers from the documents below and says it does not know when they do not contain the answer.\n\n")
	sb.WriteString("Here are the relevant documents for the context:\n\n")
	if len(docs) == 0 {
		sb.WriteString("(no documents were found)\n")
	}
	for idx, doc := range docs {
		label := doc.Path()
		if label == "" {
			label = doc.Name()
		}
		if label == "" {
			label = "unknown source"
		}
		text := strings.TrimSpace(doc.Text)
		if len(text) > maxContextChars {
			text = text[:maxContextChars] + "..."
		}
		sb.WriteString(fmt.Sprintf("Document %d (%s):\n%s\n\n", idx+1, label, text))
	}
	sb.WriteString("Instruction: Based on the above documents, provide a detailed answer for the user question below.")
	return sb.String()
}

func formatCondensePrompt(question string, history []session.Turn) string {
	var sb strings.Builder
	sb.WriteString("Given the following conversation between a user and an AI assistant and a follow up question from the user, ")
	sb.WriteString("rephrase the follow up question to be a standalone question.\n\n")
	sb.WriteString("Chat History:\n")
	for _, turn := range history {
		sb.WriteString(string(turn.Role))
		sb.WriteString(": ")
		sb.WriteString(turn.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("Follow Up Input: ")
	sb.WriteString(question)
	sb.WriteString("\nStandalone question:")
	return sb.String()
}

func toMessages(history []session.Turn) []llm.Message {
	messages := make([]llm.Message, 0, len(history))
	for _, turn := range history {
		if !turn.Role.Valid() {
			continue
		}
		messages = append(messages, llm.Message{Role: string(turn.Role), Content: turn.Content})
	}
	return messages
}
