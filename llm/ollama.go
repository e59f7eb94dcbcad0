package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	ollamaProvider   = "ollama"
	ollamaChatPath   = "/api/chat"
	maxErrorBodySize = 4 << 10
)

// ollamaClient calls the non-streaming /api/chat endpoint of an Ollama
// server.
type ollamaClient struct {
	endpoint string
	model    string
	http     *http.Client
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error"`
}

func NewOllamaClient(opts Options) Client {
	host := strings.TrimRight(opts.OllamaHost, "/")
	if host == "" {
		host = "http://localhost:11434"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ollamaClient{
		endpoint: host + ollamaChatPath,
		model:    opts.Model,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *ollamaClient) Generate(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    c.model,
		Messages: ollamaMessages(messages),
	})
	if err != nil {
		return "", fmt.Errorf("encode ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", ollamaStatusError(resp)
	}

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if parsed.Error != "" {
		return "", &ProviderError{Provider: ollamaProvider, StatusCode: resp.StatusCode, Message: parsed.Error}
	}
	return completion(ollamaProvider, parsed.Message.Content)
}

// ollamaStatusError reads the error Ollama sends with a failing status. It is
// a JSON {"error": ...} object for API errors and plain text otherwise.
func ollamaStatusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	message := strings.TrimSpace(string(data))

	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		message = payload.Error
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &ProviderError{Provider: ollamaProvider, StatusCode: resp.StatusCode, Message: message}
}

func ollamaMessages(messages []Message) []ollamaChatMessage {
	out := make([]ollamaChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, ollamaChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
