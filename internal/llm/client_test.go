package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func chatBody(t *testing.T, r *http.Request) ChatRequest {
	t.Helper()
	var req ChatRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req
}

func writeChatResponse(w http.ResponseWriter, content string, toolCalls []ToolCall) {
	resp := map[string]any{
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message": ChatMessage{
					Role:      RoleAssistant,
					Content:   content,
					ToolCalls: toolCalls,
				},
			},
		},
		"usage": Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		"model": "test-model",
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func TestChatSendsBearerAndModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		req := chatBody(t, r)
		require.Equal(t, "test-model", req.Model)
		writeChatResponse(w, "hello", nil)
	}))
	defer server.Close()

	c := NewClient(server.URL, "sk-test", "test-model")
	resp, err := c.Chat(context.Background(), ChatRequest{Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	require.Equal(t, "hello", resp.Message.Content)
	require.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestChatRetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream overloaded", http.StatusBadGateway)
			return
		}
		writeChatResponse(w, "recovered", nil)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "m")
	c.retryDelay = time.Millisecond
	var retries int
	c.OnRetry = func(attempt int, err error) { retries++ }

	resp, err := c.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	require.Equal(t, "recovered", resp.Message.Content)
	require.EqualValues(t, 3, calls.Load())
	require.Equal(t, 2, retries)
}

func TestChatDoesNotRetry4xx(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "m")
	_, err := c.Chat(context.Background(), ChatRequest{})
	require.Error(t, err)
	require.EqualValues(t, 1, calls.Load())
}

func TestChatCancelledContextSurfacesImmediately(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(server.URL, "", "m")
	_, err := c.Chat(ctx, ChatRequest{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestChatExtractsTextualToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeChatResponse(w, "I will look.\n<tool_call>{\"name\":\"find_files\",\"arguments\":{\"pattern\":\"*.md\"}}</tool_call>", nil)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "m")
	resp, err := c.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	require.Equal(t, "I will look.", resp.Message.Content)
	require.Len(t, resp.Message.ToolCalls, 1)
	require.Equal(t, "find_files", resp.Message.ToolCalls[0].Function.Name)
}

func TestChatKeepsStructuredToolCalls(t *testing.T) {
	structured := []ToolCall{{
		ID:   "call_1",
		Type: "function",
		Function: ToolFunctionCall{
			Name:      "read_file",
			Arguments: json.RawMessage(`{"path":"x"}`),
		},
	}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeChatResponse(w, "", structured)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "m")
	resp, err := c.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Message.ToolCalls, 1)
	require.Equal(t, "call_1", resp.Message.ToolCalls[0].ID)
}

func TestEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float64{0.1, 0.2}},
				{"embedding": []float64{0.3, 0.4}},
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "m")
	vectors, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	require.Equal(t, []float64{0.3, 0.4}, vectors[1])
}

func TestRerank(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rerank", r.URL.Path)
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "indentation", req.Query)
		require.Len(t, req.Documents, 2)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 1, "relevance_score": 0.9},
				{"index": 0, "relevance_score": 0.4},
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "m")
	results, err := c.Rerank(context.Background(), "indentation", []string{"doc a", "doc b"}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, 1, results[0].Index)
	require.InDelta(t, 0.9, results[0].Score, 1e-9)
}
