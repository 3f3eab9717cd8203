package daemon

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"go.uber.org/zap"

	"github.com/bluehawksai/bluehawks-cli/internal/agent"
	"github.com/bluehawksai/bluehawks-cli/internal/config"
	"github.com/bluehawksai/bluehawks-cli/internal/core"
	"github.com/bluehawksai/bluehawks-cli/internal/rpc"
	chatrpc "github.com/bluehawksai/bluehawks-cli/internal/rpc/chat"
	schemarpc "github.com/bluehawksai/bluehawks-cli/internal/rpc/schema"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server hosts the daemon endpoints: health, metrics, tool schemas,
// and the chat stream over Connect or NDJSON.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	core   *core.Core
}

// NewServer constructs a daemon instance over an assembled core.
func NewServer(cfg *config.Config, logger *zap.Logger, c *core.Core) *Server {
	return &Server{cfg: cfg, logger: logger, core: c}
}

// Chat implements the chat runner: it bridges orchestrator callbacks
// into the event stream.
func (s *Server) Chat(ctx context.Context, req rpc.ChatRequest) (<-chan rpc.ChatEvent, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	out := make(chan rpc.ChatEvent, 16)
	go func() {
		defer close(out)

		sessionID := s.core.Session.ID
		cb := agent.Callbacks{
			OnChunk: func(text string) {
				select {
				case out <- rpc.ChatEvent{Type: "token", SessionID: sessionID, Token: text}:
				case <-ctx.Done():
				}
			},
			OnToolStart: func(name string, args map[string]any) {
				select {
				case out <- rpc.ChatEvent{Type: "tool", SessionID: sessionID, ToolName: name}:
				case <-ctx.Done():
				}
			},
			OnToolEnd: func(name, result string) {
				select {
				case out <- rpc.ChatEvent{Type: "tool", SessionID: sessionID, ToolName: name, ToolOutput: result}:
				case <-ctx.Done():
				}
			},
		}

		var (
			resp agent.Response
			err  error
		)
		if req.SubAgent != "" {
			resp, err = s.core.Orchestrator.RunSubAgent(ctx, req.SubAgent, req.Prompt, cb)
		} else {
			resp, err = s.core.Orchestrator.Chat(ctx, req.Prompt, cb)
		}
		if err != nil {
			out <- rpc.ChatEvent{Type: "error", SessionID: sessionID, Error: err.Error()}
			return
		}
		out <- rpc.ChatEvent{
			Type:         "done",
			SessionID:    sessionID,
			Done:         true,
			Iterations:   resp.Iterations,
			TokensUsed:   resp.TokenUsage.TotalTokens,
			FinishReason: "stop",
		}
	}()
	return out, nil
}

// Run starts the HTTP server and blocks until context cancellation or
// fatal error.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)
	mux.Handle("/tools/schemas", schemarpc.Handler{Registry: s.core.Registry})

	switch strings.ToLower(strings.TrimSpace(s.cfg.Server.Transport)) {
	case "ndjson":
		mux.Handle("/chat", chatrpc.NewHandler(s, s.core.Metrics))
	default:
		path, handler := chatrpc.NewConnectHandler(s, s.core.Metrics)
		mux.Handle(path, handler)
		// keep the NDJSON path available for plain HTTP clients
		mux.Handle("/chat", chatrpc.NewHandler(s, s.core.Metrics))
	}

	handler := http.Handler(mux)
	if strings.ToLower(strings.TrimSpace(s.cfg.Server.Transport)) != "ndjson" {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting bluehawks daemon", zap.String("addr", s.cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down bluehawks daemon")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled {
		http.NotFound(w, r)
		return
	}
	promhttp.HandlerFor(s.core.Metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
