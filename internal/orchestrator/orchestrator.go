// Package orchestrator assembles the system prompt, owns the
// multi-turn history, and launches agent turns.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bluehawksai/bluehawks-cli/internal/agent"
	"github.com/bluehawksai/bluehawks-cli/internal/hooks"
	"github.com/bluehawksai/bluehawks-cli/internal/llm"
	"github.com/bluehawksai/bluehawks-cli/internal/memory"
	"github.com/bluehawksai/bluehawks-cli/internal/observability"
	"github.com/bluehawksai/bluehawks-cli/internal/session"
	"github.com/bluehawksai/bluehawks-cli/internal/tools"
)

// DefaultMaxTurns bounds agent iterations per user turn.
const DefaultMaxTurns = 15

// ContextFileName is the workspace context file embedded into the
// system prompt.
const ContextFileName = "BLUEHAWKS.md"

// memoryRetrievalLimit caps memories pulled per turn.
const memoryRetrievalLimit = 5

// Config assembles an orchestrator.
type Config struct {
	Client       agent.CompletionService
	Registry     *tools.Registry
	Executor     *tools.Executor
	Hooks        *hooks.Pipeline
	Memory       *memory.Store
	Session      *session.Session
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Model        string
	Temperature  float64
	ProjectPath  string
	CustomPrompt string
	PlanMode     bool
	MaxTurns     int
	// MemoryMinSimilarity overrides the retrieval floor (0 = default).
	MemoryMinSimilarity float64
	WordDelay           time.Duration
}

// Orchestrator owns the running user/assistant history across calls.
// The per-turn tool transcript lives inside the agent loop and is not
// carried forward.
type Orchestrator struct {
	cfg Config

	mu       sync.Mutex
	history  []llm.ChatMessage
	listing  string
	context  string
	planMode bool
}

// New loads the workspace context file and directory listing once, then
// fires the SessionStart hook.
func New(cfg Config) *Orchestrator {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	o := &Orchestrator{cfg: cfg, planMode: cfg.PlanMode}

	if ws, err := tools.NewWorkspace(cfg.ProjectPath, false); err == nil {
		o.listing = ws.ShallowListing()
	}
	if data, err := os.ReadFile(filepath.Join(cfg.ProjectPath, ContextFileName)); err == nil {
		o.context = string(data)
	}

	if cfg.Hooks != nil {
		cfg.Hooks.Execute(context.Background(), hooks.SessionStart, o.hookInput())
	}
	return o
}

// SetPlanMode toggles the plan-mode addendum for subsequent turns.
func (o *Orchestrator) SetPlanMode(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.planMode = on
}

// History returns a copy of the running exchanges.
func (o *Orchestrator) History() []llm.ChatMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]llm.ChatMessage, len(o.history))
	copy(out, o.history)
	return out
}

// SeedHistory replaces the running history, used when resuming a saved
// session.
func (o *Orchestrator) SeedHistory(messages []llm.ChatMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = append(o.history[:0], messages...)
}

// Chat runs one user turn through a fresh agent.
func (o *Orchestrator) Chat(ctx context.Context, userMessage string, cb agent.Callbacks) (agent.Response, error) {
	if o.cfg.Hooks != nil {
		input := o.hookInput()
		input.Prompt = userMessage
		outputs := o.cfg.Hooks.Execute(ctx, hooks.UserPromptSubmit, input)
		for _, out := range outputs {
			if out.Block {
				reason := out.BlockReason
				if reason == "" {
					reason = "blocked"
				}
				return agent.Response{}, fmt.Errorf("prompt blocked by hook: %s", reason)
			}
		}
	}

	o.mu.Lock()
	o.history = append(o.history, llm.ChatMessage{Role: llm.RoleUser, Content: userMessage})
	prior := make([]llm.ChatMessage, len(o.history)-1)
	copy(prior, o.history[:len(o.history)-1])
	planMode := o.planMode
	o.mu.Unlock()

	var retrieved []memory.SearchResult
	if o.cfg.Memory != nil {
		results, err := o.cfg.Memory.Search(ctx, userMessage, memoryRetrievalLimit, o.cfg.MemoryMinSimilarity)
		if err != nil && o.cfg.Logger != nil {
			o.cfg.Logger.Warn("memory retrieval failed", zap.Error(err))
		}
		retrieved = results
	}

	systemPrompt := buildSystemPrompt(o.cfg.CustomPrompt, retrieved, o.listing, o.context, planMode)

	runner := agent.New(agent.Config{
		Client:        o.cfg.Client,
		Registry:      o.cfg.Registry,
		Executor:      o.cfg.Executor,
		Hooks:         o.cfg.Hooks,
		Logger:        o.cfg.Logger,
		SystemPrompt:  systemPrompt,
		Model:         o.cfg.Model,
		Temperature:   o.cfg.Temperature,
		MaxIterations: o.cfg.MaxTurns,
		SessionID:     o.sessionID(),
		ProjectPath:   o.cfg.ProjectPath,
		WordDelay:     o.cfg.WordDelay,
	})

	start := time.Now()
	resp, err := runner.Run(ctx, userMessage, cb, prior)
	if err != nil {
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.RecordAgentRun("error", time.Since(start), resp.Iterations)
		}
		return resp, err
	}

	o.mu.Lock()
	o.history = append(o.history, llm.ChatMessage{Role: llm.RoleAssistant, Content: resp.Content})
	o.mu.Unlock()

	o.recordSession(userMessage, resp)

	if o.cfg.Hooks != nil {
		input := o.hookInput()
		input.MessageCount = len(o.History())
		input.TokensUsed = resp.TokenUsage.TotalTokens
		o.cfg.Hooks.Execute(ctx, hooks.Stop, input)
	}
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.RecordAgentRun("stop", time.Since(start), resp.Iterations)
		o.cfg.Metrics.RecordTokens(o.cfg.Model, resp.TokenUsage.TotalTokens)
	}
	return resp, nil
}

// EndSession fires the SessionEnd hook with aggregate metrics.
func (o *Orchestrator) EndSession(ctx context.Context) {
	if o.cfg.Hooks == nil {
		return
	}
	input := o.hookInput()
	if o.cfg.Session != nil {
		input.MessageCount = o.cfg.Session.MessageCount()
		input.TokensUsed = o.cfg.Session.Metadata.TotalTokens
	}
	o.cfg.Hooks.Execute(ctx, hooks.SessionEnd, input)
}

func (o *Orchestrator) recordSession(userMessage string, resp agent.Response) {
	s := o.cfg.Session
	if s == nil {
		return
	}
	s.AddMessage(llm.ChatMessage{Role: llm.RoleUser, Content: userMessage})
	s.AddMessage(llm.ChatMessage{Role: llm.RoleAssistant, Content: resp.Content})
	s.RecordUsage(o.cfg.Model, resp.TokenUsage, resp.APITime)
	s.AddToolCounts(resp.SuccessfulToolCalls, resp.FailedToolCalls, resp.ToolTime)
	for _, name := range resp.ToolsUsed {
		s.MarkToolUsed(name)
	}
}

func (o *Orchestrator) sessionID() string {
	if o.cfg.Session != nil {
		return o.cfg.Session.ID
	}
	return ""
}

func (o *Orchestrator) hookInput() hooks.Input {
	return hooks.Input{
		SessionID:   o.sessionID(),
		ProjectPath: o.cfg.ProjectPath,
		Model:       o.cfg.Model,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}
