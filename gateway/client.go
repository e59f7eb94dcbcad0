// Package gateway is a client for the retrieval backend that indexes the
// synced document folders and answers retrieval, statistics and listing
// queries over its REST API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fabfab/docchat/config"
)

// APIKeyHeader carries the optional API key on every request.
const APIKeyHeader = "X-Pathway-API-Key"

const maxErrorBody = 4 << 10

// ErrNoChangeTime is returned by LastChange when the backend does not know
// when the corpus last changed.
var ErrNoChangeTime = errors.New("backend reported no last change time")

// StatusError is returned when the backend answers with an HTTP error.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
}

type Options struct {
	Host       string
	Port       int
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: BaseURL(opts.Host, opts.Port),
		apiKey:  opts.APIKey,
		client:  httpClient,
		logger:  logger,
	}
}

func NewFromConfig(cfg config.Config, logger *zap.Logger) *Client {
	return New(Options{
		Host:    cfg.Pathway.Host,
		Port:    cfg.Pathway.Port,
		APIKey:  cfg.Pathway.APIKey,
		Timeout: cfg.Pathway.Timeout,
		Logger:  logger,
	})
}

// BaseURL builds the backend URL from a host and port. A bare host gets
// http, or https when port is 443. The port is added only when the host has
// none and it is not one of the well-known ports 80 and 443.
func BaseURL(host string, port int) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if !strings.Contains(host, "://") {
		scheme := "http"
		if port == 443 {
			scheme = "https"
		}
		host = scheme + "://" + host
	}

	u, err := url.Parse(host)
	if err != nil || u.Host == "" {
		return host
	}
	if u.Port() == "" && port > 0 && port != 80 && port != 443 {
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	}
	return strings.TrimRight(u.String(), "/")
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Retrieve returns the k documents closest to query.
func (c *Client) Retrieve(ctx context.Context, query string, k int) ([]Document, error) {
	if k <= 0 {
		k = 3
	}
	var payload []documentPayload
	if err := c.post(ctx, "/v1/retrieve", retrieveRequest{Query: query, K: k}, &payload); err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(payload))
	for _, item := range payload {
		docs = append(docs, Document{
			Text:     item.Text,
			Metadata: item.Metadata,
			Distance: item.Dist,
		})
	}
	return docs, nil
}

func (c *Client) Statistics(ctx context.Context) (Statistics, error) {
	var payload statisticsPayload
	if err := c.post(ctx, "/v1/statistics", struct{}{}, &payload); err != nil {
		return Statistics{}, err
	}
	return Statistics{
		FileCount:    payload.FileCount,
		LastModified: unixPtr(payload.LastModified),
		LastIndexed:  unixPtr(payload.LastIndexed),
	}, nil
}

// LastChange reports the most recent document change across the corpus.
func (c *Client) LastChange(ctx context.Context) (time.Time, error) {
	stats, err := c.Statistics(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if stats.LastModified == nil {
		return time.Time{}, ErrNoChangeTime
	}
	return *stats.LastModified, nil
}

// InputFiles lists the files the backend currently indexes. Entries without
// a seen_at timestamp are dropped.
func (c *Client) InputFiles(ctx context.Context) ([]InputFile, error) {
	var payload []inputFilePayload
	if err := c.post(ctx, "/v1/inputs", struct{}{}, &payload); err != nil {
		return nil, err
	}

	files := make([]InputFile, 0, len(payload))
	dropped := 0
	for _, item := range payload {
		file, ok := item.toInputFile()
		if !ok {
			dropped++
			continue
		}
		files = append(files, file)
	}
	if dropped > 0 {
		c.logger.Warn("dropped malformed input file entries", zap.Int("count", dropped))
	}
	return files, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body, dst any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func unixPtr(seconds *float64) *time.Time {
	if seconds == nil {
		return nil
	}
	t := unixSeconds(*seconds)
	return &t
}

func unixSeconds(seconds float64) time.Time {
	whole := int64(seconds)
	frac := int64((seconds - float64(whole)) * float64(time.Second))
	return time.Unix(whole, frac).UTC()
}
