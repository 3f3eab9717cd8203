package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

type streamChunkPayload struct {
	Choices []struct {
		Delta struct {
			Content   string          `json:"content"`
			ToolCalls []ToolCallDelta `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// ChatStream executes a streaming chat completion over Server-Sent
// Events and returns a channel of chunks closed on stream end. Tools may
// not be sent in streaming mode; the remote provider does not guarantee
// tool choice in that regime.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	if len(req.Tools) > 0 {
		return nil, fmt.Errorf("stream: tools are not supported in streaming mode")
	}
	if req.Model == "" {
		req.Model = c.model
	}
	req.Stream = true

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, &transportError{err: err}
	}
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		res.Body.Close()
		cancel()
		return nil, &httpError{status: res.StatusCode, body: string(b)}
	}

	out := make(chan StreamChunk, 16)
	go func() {
		defer close(out)
		defer cancel()
		defer res.Body.Close()

		scanner := bufio.NewScanner(res.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			var chunk streamChunkPayload
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			select {
			case out <- StreamChunk{
				Content:      choice.Delta.Content,
				ToolCalls:    choice.Delta.ToolCalls,
				FinishReason: choice.FinishReason,
			}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			out <- StreamChunk{Err: &transportError{err: err}}
		}
	}()

	return out, nil
}

// CollectStream drains a chunk stream, concatenating content and
// aggregating tool-call deltas (keyed by index, argument fragments
// appended) into complete ToolCall records.
func CollectStream(chunks <-chan StreamChunk) (string, []ToolCall, error) {
	var content strings.Builder
	partial := make(map[int]*ToolCallDelta)

	for chunk := range chunks {
		if chunk.Err != nil {
			return content.String(), nil, chunk.Err
		}
		content.WriteString(chunk.Content)
		for _, delta := range chunk.ToolCalls {
			acc, ok := partial[delta.Index]
			if !ok {
				d := delta
				partial[delta.Index] = &d
				continue
			}
			if delta.ID != "" {
				acc.ID = delta.ID
			}
			if delta.Name != "" {
				acc.Name = delta.Name
			}
			acc.Arguments += delta.Arguments
		}
	}

	indexes := make([]int, 0, len(partial))
	for idx := range partial {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		d := partial[idx]
		args := d.Arguments
		if args == "" {
			args = "{}"
		}
		calls = append(calls, ToolCall{
			ID:   d.ID,
			Type: "function",
			Function: ToolFunctionCall{
				Name:      d.Name,
				Arguments: json.RawMessage(args),
			},
		})
	}
	return content.String(), calls, nil
}
