package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bluehawksai/bluehawks-cli/internal/observability"
	"github.com/bluehawksai/bluehawks-cli/internal/rpc"
)

// Runner executes a chat turn and yields streamed events.
type Runner interface {
	Chat(ctx context.Context, req rpc.ChatRequest) (<-chan rpc.ChatEvent, error)
}

// Handler processes chat requests and streams NDJSON events.
type Handler struct {
	runner  Runner
	metrics *observability.Metrics
}

// NewHandler constructs a handler instance.
func NewHandler(runner Runner, metrics *observability.Metrics) *Handler {
	return &Handler{runner: runner, metrics: metrics}
}

// ServeHTTP handles POST /chat with an NDJSON stream of ChatEvent.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		if h.metrics != nil {
			h.metrics.RecordTransportError("ndjson", "method_not_allowed")
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.metrics != nil {
		h.metrics.IncActiveSessions("ndjson")
		defer h.metrics.DecActiveSessions("ndjson")
	}

	var req rpc.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if h.metrics != nil {
			h.metrics.RecordTransportError("ndjson", "decode")
		}
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	events, err := h.runner.Chat(r.Context(), req)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordTransportError("ndjson", "runner_error")
		}
		_ = json.NewEncoder(w).Encode(rpc.ChatEvent{Type: "error", Error: err.Error()})
		return
	}

	writer := bufio.NewWriter(w)
	for ev := range events {
		if err := json.NewEncoder(writer).Encode(ev); err != nil {
			break
		}
		writer.Flush()
		flusher.Flush()
	}
}
