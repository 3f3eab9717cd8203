package mock

import (
	"context"
	"fmt"

	"github.com/bluehawksai/bluehawks-cli/internal/llm"
)

// Client is a scriptable completion service for tests. Unset function
// fields fail loudly so tests never silently pass on a missing stub.
type Client struct {
	ChatFn   func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
	EmbedFn  func(ctx context.Context, texts []string) ([][]float64, error)
	RerankFn func(ctx context.Context, query string, documents []string, topN int) ([]llm.RerankResult, error)

	ChatCalls int
}

func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	c.ChatCalls++
	if c.ChatFn == nil {
		return llm.ChatResponse{}, fmt.Errorf("mock: ChatFn not set")
	}
	return c.ChatFn(ctx, req)
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if c.EmbedFn == nil {
		return nil, fmt.Errorf("mock: EmbedFn not set")
	}
	return c.EmbedFn(ctx, texts)
}

func (c *Client) Rerank(ctx context.Context, query string, documents []string, topN int) ([]llm.RerankResult, error) {
	if c.RerankFn == nil {
		return nil, fmt.Errorf("mock: RerankFn not set")
	}
	return c.RerankFn(ctx, query, documents, topN)
}
