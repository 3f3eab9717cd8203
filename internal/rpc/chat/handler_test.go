package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluehawksai/bluehawks-cli/internal/rpc"
)

// echoRunner emits one token per prompt word, then done.
type echoRunner struct{}

func (echoRunner) Chat(ctx context.Context, req rpc.ChatRequest) (<-chan rpc.ChatEvent, error) {
	out := make(chan rpc.ChatEvent, 16)
	go func() {
		defer close(out)
		for _, word := range strings.Fields(req.Prompt) {
			out <- rpc.ChatEvent{Type: "token", Token: word}
		}
		out <- rpc.ChatEvent{Type: "done", Done: true, Iterations: 1}
	}()
	return out, nil
}

func TestNDJSONHandlerStreamsEvents(t *testing.T) {
	server := httptest.NewServer(NewHandler(echoRunner{}, nil))
	defer server.Close()

	body := strings.NewReader(`{"prompt":"hello streaming world"}`)
	resp, err := http.Post(server.URL, "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var events []rpc.ChatEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var ev rpc.ChatEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 4)
	require.Equal(t, "hello", events[0].Token)
	require.Equal(t, "world", events[2].Token)
	require.True(t, events[3].Done)
}

func TestNDJSONHandlerRejectsGet(t *testing.T) {
	server := httptest.NewServer(NewHandler(echoRunner{}, nil))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestNDJSONHandlerRejectsBadJSON(t *testing.T) {
	server := httptest.NewServer(NewHandler(echoRunner{}, nil))
	defer server.Close()

	resp, err := http.Post(server.URL, "application/json", strings.NewReader("{broken"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
