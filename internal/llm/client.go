package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout = 120 * time.Second
	maxRetries     = 3
	retryBaseDelay = time.Second
)

// Client talks to an OpenAI-compatible completion service: chat
// completions (plain and streaming), embeddings, and rerank. It owns no
// persistent state beyond configuration.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	retryDelay time.Duration
	logger     *zap.Logger

	// OnRetry, when set, observes each retry attempt.
	OnRetry func(attempt int, err error)
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout overrides the per-request hard deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient constructs a completion client for the given base URL.
func NewClient(baseURL, apiKey, model string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		timeout:    defaultTimeout,
		retryDelay: retryBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the default model name.
func (c *Client) Model() string { return c.model }

type chatCompletionResponse struct {
	Choices []struct {
		Index        int         `json:"index"`
		FinishReason string      `json:"finish_reason"`
		Message      ChatMessage `json:"message"`
	} `json:"choices"`
	Usage Usage  `json:"usage"`
	Model string `json:"model"`
}

// Chat executes a non-streaming chat completion. After decoding, the
// assistant message is run through textual tool-call extraction when the
// provider did not populate structured tool_calls.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	req.Stream = false

	var resp chatCompletionResponse
	if err := c.postJSON(ctx, "/chat/completions", req, &resp); err != nil {
		return ChatResponse{}, err
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("chat: empty choices")
	}

	msg := resp.Choices[0].Message
	msg.Content = StripThink(msg.Content)
	if len(msg.ToolCalls) == 0 && looksLikeTextualToolCall(msg.Content) {
		clean, calls := ExtractToolCalls(msg.Content)
		msg.Content = clean
		msg.ToolCalls = calls
	}

	return ChatResponse{
		Message:      msg,
		FinishReason: resp.Choices[0].FinishReason,
		Usage:        resp.Usage,
		Model:        resp.Model,
	}, nil
}

type embeddingsRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one embedding vector per input text.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp embeddingsResponse
	if err := c.postJSON(ctx, "/embeddings", embeddingsRequest{Input: texts}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []RerankResult `json:"results"`
}

// Rerank scores documents against a query; results come back sorted by
// descending score.
func (c *Client) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	var resp rerankResponse
	err := c.postJSON(ctx, "/rerank", rerankRequest{Query: query, Documents: documents, TopN: topN}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// postJSON issues a POST with retry on 5xx responses and non-abort
// network failures (up to maxRetries retries after the first attempt,
// linear backoff of retryDelay × attempt). Context
// cancellation surfaces immediately without retry.
func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		lastErr = c.doOnce(ctx, path, payload, out)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		if attempt <= maxRetries {
			if c.OnRetry != nil {
				c.OnRetry(attempt, lastErr)
			}
			if c.logger != nil {
				c.logger.Warn("completion request failed, retrying",
					zap.String("path", path), zap.Int("attempt", attempt), zap.Error(lastErr))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, path string, payload []byte, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &transportError{err: err}
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return &httpError{status: res.StatusCode, body: string(b)}
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// httpError is a non-2xx response from the service.
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.status, e.body)
}

// transportError is a network-level failure before a response arrived.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return fmt.Sprintf("api: %v", e.err) }
func (e *transportError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var he *httpError
	if errors.As(err, &he) {
		return he.status >= 500
	}
	var te *transportError
	return errors.As(err, &te)
}
