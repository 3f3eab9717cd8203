package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluehawksai/bluehawks-cli/internal/tools"
)

// fakePeer scripts a helper process over in-memory pipes.
type fakePeer struct {
	conn   *Conn
	out    *io.PipeWriter
	lines  <-chan string
	closed func()
}

func newFakePeer(t *testing.T, handle func(req rpcRequest) *rpcResponse) *fakePeer {
	t.Helper()

	clientToPeerR, clientToPeerW := io.Pipe()
	peerToClientR, peerToClientW := io.Pipe()

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(clientToPeerR)
		for scanner.Scan() {
			line := scanner.Text()
			lines <- line

			var req rpcRequest
			if err := json.Unmarshal([]byte(line), &req); err != nil {
				continue
			}
			resp := handle(req)
			if resp == nil {
				continue
			}
			payload, _ := json.Marshal(resp)
			_, _ = peerToClientW.Write(append(payload, '\n'))
		}
	}()

	conn := newPipeConn("srv", clientToPeerW, peerToClientR, nil)
	return &fakePeer{
		conn:  conn,
		out:   peerToClientW,
		lines: lines,
		closed: func() {
			clientToPeerW.Close()
			peerToClientW.Close()
		},
	}
}

func okResult(req rpcRequest, result any) *rpcResponse {
	payload, _ := json.Marshal(result)
	return &rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: payload}
}

func standardHandler(req rpcRequest) *rpcResponse {
	switch req.Method {
	case "initialize":
		return okResult(req, map[string]any{"protocolVersion": protocolVersion})
	case "notifications/initialized":
		return nil
	case "tools/list":
		return okResult(req, toolsListResult{Tools: []ToolInfo{
			{
				Name:        "lookup",
				Description: "Look a thing up",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"key": map[string]any{"type": "string"},
					},
					"required": []any{"key"},
				},
			},
		}})
	case "tools/call":
		return okResult(req, "looked up: ok")
	default:
		return &rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: "method not found"}}
	}
}

func TestInitializeHandshake(t *testing.T) {
	peer := newFakePeer(t, standardHandler)
	defer peer.closed()

	require.NoError(t, peer.conn.initialize(context.Background()))

	var init rpcRequest
	require.NoError(t, json.Unmarshal([]byte(<-peer.lines), &init))
	require.Equal(t, "initialize", init.Method)
	require.NotNil(t, init.ID)

	var notified rpcRequest
	require.NoError(t, json.Unmarshal([]byte(<-peer.lines), &notified))
	require.Equal(t, "notifications/initialized", notified.Method)
	require.Nil(t, notified.ID, "notification must carry no id")
}

func TestRegisterToolsNamingAndSafety(t *testing.T) {
	peer := newFakePeer(t, standardHandler)
	defer peer.closed()

	reg := tools.NewRegistry()
	count, err := peer.conn.RegisterTools(context.Background(), reg)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	d, ok := reg.Get("mcp_srv_lookup")
	require.True(t, ok)
	require.False(t, d.AutoSafe)
	require.True(t, strings.HasPrefix(d.Description, "[MCP:srv] "))
	require.Equal(t, []string{"key"}, d.Parameters.Required)
	require.Equal(t, "string", d.Parameters.Properties["key"].Type)

	out, err := d.Handler(context.Background(), map[string]any{"key": "x"})
	require.NoError(t, err)
	require.Equal(t, "looked up: ok", out)
}

func TestCallStringifiesStructuredResult(t *testing.T) {
	peer := newFakePeer(t, func(req rpcRequest) *rpcResponse {
		if req.Method == "tools/call" {
			return okResult(req, map[string]any{"items": []int{1, 2}})
		}
		return standardHandler(req)
	})
	defer peer.closed()

	out, err := peer.conn.CallTool(context.Background(), "lookup", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"items":[1,2]}`, out)
}

func TestRequestIDsIncrease(t *testing.T) {
	peer := newFakePeer(t, standardHandler)
	defer peer.closed()

	_, err := peer.conn.ListTools(context.Background())
	require.NoError(t, err)
	_, err = peer.conn.ListTools(context.Background())
	require.NoError(t, err)

	var first, second rpcRequest
	require.NoError(t, json.Unmarshal([]byte(<-peer.lines), &first))
	require.NoError(t, json.Unmarshal([]byte(<-peer.lines), &second))
	require.Greater(t, *second.ID, *first.ID)
}

func TestServerErrorSurfaced(t *testing.T) {
	peer := newFakePeer(t, func(req rpcRequest) *rpcResponse {
		return &rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32000, Message: "backend down"}}
	})
	defer peer.closed()

	_, err := peer.conn.ListTools(context.Background())
	require.ErrorContains(t, err, "backend down")
}

func TestRequestTimeoutRemovesPending(t *testing.T) {
	peer := newFakePeer(t, func(req rpcRequest) *rpcResponse {
		return nil // never answer
	})
	defer peer.closed()
	peer.conn.timeout = 50 * time.Millisecond

	_, err := peer.conn.ListTools(context.Background())
	require.ErrorContains(t, err, "timed out")

	peer.conn.pendingMu.Lock()
	pending := len(peer.conn.pending)
	peer.conn.pendingMu.Unlock()
	require.Equal(t, 0, pending)
}
