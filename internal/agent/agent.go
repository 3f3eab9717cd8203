// Package agent runs the bounded think/act iteration: completion,
// content extraction, tool dispatch through the executor and hook
// pipeline, message append, repeat.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bluehawksai/bluehawks-cli/internal/hooks"
	"github.com/bluehawksai/bluehawks-cli/internal/llm"
	"github.com/bluehawksai/bluehawks-cli/internal/tools"
)

// DefaultMaxIterations bounds the think/act loop.
const DefaultMaxIterations = 10

// wordDelay spaces the word-by-word emission of final-turn content.
const wordDelay = 20 * time.Millisecond

// CompletionService is the slice of the completion client the loop
// needs.
type CompletionService interface {
	Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
}

// Config assembles an agent.
type Config struct {
	Client        CompletionService
	Registry      *tools.Registry
	Executor      *tools.Executor
	Hooks         *hooks.Pipeline
	Logger        *zap.Logger
	SystemPrompt  string
	Model         string
	Temperature   float64
	MaxIterations int
	SessionID     string
	ProjectPath   string
	// WordDelay overrides the final-turn emission spacing; zero keeps
	// the default and a negative value disables spacing (tests use -1).
	WordDelay time.Duration
}

// Agent executes one user turn at a time. Within a turn, at most one
// HTTP request or tool handler is in flight; all side effects land in
// program order.
type Agent struct {
	cfg       Config
	wordDelay time.Duration
}

// Response is the outcome of one agent turn.
type Response struct {
	Content             string
	ToolsUsed           []string
	Iterations          int
	APITime             time.Duration
	ToolTime            time.Duration
	SuccessfulToolCalls int
	FailedToolCalls     int
	TokenUsage          llm.Usage
	Messages            []llm.ChatMessage
}

// New builds an agent from config, filling defaults.
func New(cfg Config) *Agent {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	delay := cfg.WordDelay
	if delay == 0 {
		delay = wordDelay
	}
	return &Agent{cfg: cfg, wordDelay: delay}
}

// Run executes a turn: system prompt, replayed prior history, the user
// message, then up to MaxIterations completion/tool rounds.
func (a *Agent) Run(ctx context.Context, userMessage string, cb Callbacks, priorHistory []llm.ChatMessage) (Response, error) {
	if strings.TrimSpace(userMessage) == "" {
		return Response{}, fmt.Errorf("user message is required")
	}

	messages := make([]llm.ChatMessage, 0, len(priorHistory)+2)
	if a.cfg.SystemPrompt != "" {
		messages = append(messages, llm.ChatMessage{Role: llm.RoleSystem, Content: a.cfg.SystemPrompt})
	}
	messages = append(messages, priorHistory...)
	messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: userMessage})

	var (
		resp      Response
		contents  []string
		schemas   []llm.ToolSchema
		toolsSeen = map[string]bool{}
	)
	if a.cfg.Registry != nil {
		schemas = a.cfg.Registry.Schemas()
	}

	for iteration := 1; iteration <= a.cfg.MaxIterations; iteration++ {
		resp.Iterations = iteration
		if err := ctx.Err(); err != nil {
			resp.Messages = messages
			return resp, err
		}

		apiStart := time.Now()
		completion, err := a.cfg.Client.Chat(ctx, llm.ChatRequest{
			Model:       a.cfg.Model,
			Messages:    messages,
			Temperature: a.cfg.Temperature,
			Tools:       schemas,
		})
		resp.APITime += time.Since(apiStart)
		if err != nil {
			resp.Messages = messages
			return resp, fmt.Errorf("completion failed: %w", err)
		}
		resp.TokenUsage.Add(completion.Usage)

		assistant := completion.Message
		assistant.Role = llm.RoleAssistant
		assistant.Content = llm.StripThink(assistant.Content)
		messages = append(messages, assistant)

		final := len(assistant.ToolCalls) == 0
		if assistant.Content != "" {
			contents = append(contents, assistant.Content)
			a.emit(ctx, cb, assistant.Content, final)
		}

		if final {
			resp.Content = strings.Join(contents, "\n")
			resp.Messages = messages
			return resp, nil
		}

		results := a.dispatchToolCalls(ctx, assistant.ToolCalls, cb, &resp, toolsSeen)
		for _, r := range results {
			messages = append(messages, llm.ChatMessage{
				Role:       llm.RoleTool,
				Content:    r.Content,
				ToolCallID: r.ToolCallID,
			})
		}
	}

	resp.Content = strings.Join(contents, "\n")
	resp.Messages = messages
	return resp, nil
}

// dispatchToolCalls runs the calls in array order: PreToolUse gate,
// executor, then the post hook matching the outcome. At most one of
// {hook block, denial, PostToolUse, PostToolUseFailure} fires per call;
// unknown-tool and malformed-argument outcomes fire none of them.
func (a *Agent) dispatchToolCalls(ctx context.Context, calls []llm.ToolCall, cb Callbacks, resp *Response, seen map[string]bool) []llm.ToolResult {
	results := make([]llm.ToolResult, 0, len(calls))
	for _, call := range calls {
		name := call.Function.Name
		input := a.hookInput(name, call)

		if a.cfg.Hooks != nil {
			if blocked, reason := firstBlock(a.cfg.Hooks.Execute(ctx, hooks.PreToolUse, input)); blocked {
				results = append(results, llm.ToolResult{
					ToolCallID: call.ID,
					Content:    "Tool blocked by hook: " + reason,
					IsError:    true,
				})
				resp.FailedToolCalls++
				continue
			}
		}

		cb.toolStart(name, input.ToolInput)

		toolStart := time.Now()
		exec := llmExecute(ctx, a.cfg.Executor, call)
		elapsed := time.Since(toolStart)
		resp.ToolTime += elapsed

		if exec.Outcome == tools.OutcomeOK {
			resp.SuccessfulToolCalls++
			if !seen[name] {
				seen[name] = true
				resp.ToolsUsed = append(resp.ToolsUsed, name)
			}
			if a.cfg.Hooks != nil {
				post := input
				post.ToolOutput = exec.Result.Content
				post.Duration = elapsed.Seconds()
				a.cfg.Hooks.Execute(ctx, hooks.PostToolUse, post)
			}
			cb.toolEnd(name, exec.Result.Content)
		} else {
			resp.FailedToolCalls++
			if a.cfg.Hooks != nil && exec.Outcome == tools.OutcomeHandlerError {
				failure := input
				failure.Error = exec.Result.Content
				failure.Duration = elapsed.Seconds()
				a.cfg.Hooks.Execute(ctx, hooks.PostToolUseFailure, failure)
			}
			cb.toolEnd(name, "Error")
		}
		results = append(results, exec.Result)
	}
	return results
}

func (a *Agent) hookInput(toolName string, call llm.ToolCall) hooks.Input {
	input := hooks.Input{
		SessionID:   a.cfg.SessionID,
		ProjectPath: a.cfg.ProjectPath,
		Model:       a.cfg.Model,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		ToolName:    toolName,
	}
	var args map[string]any
	if len(call.Function.Arguments) > 0 {
		_ = json.Unmarshal(call.Function.Arguments, &args)
	}
	input.ToolInput = args
	return input
}

// emit streams assistant text to the observer: word-by-word for the
// final turn, one chunk plus a blank line for intermediate turns.
func (a *Agent) emit(ctx context.Context, cb Callbacks, content string, final bool) {
	if cb.OnChunk == nil {
		return
	}
	if !final {
		cb.chunk(content + "\n\n")
		return
	}
	words := strings.Fields(content)
	for i, w := range words {
		if ctx.Err() != nil {
			return
		}
		if i < len(words)-1 {
			w += " "
		}
		cb.chunk(w)
		if a.wordDelay > 0 && i < len(words)-1 {
			time.Sleep(a.wordDelay)
		}
	}
}

func firstBlock(outputs []hooks.Output) (bool, string) {
	for _, out := range outputs {
		if out.Block {
			reason := out.BlockReason
			if reason == "" {
				reason = "blocked"
			}
			return true, reason
		}
	}
	return false, ""
}

func llmExecute(ctx context.Context, e *tools.Executor, call llm.ToolCall) tools.Execution {
	if e == nil {
		return tools.Execution{
			Result: llm.ToolResult{
				ToolCallID: call.ID,
				Content:    "Unknown tool: " + call.Function.Name,
				IsError:    true,
			},
			Outcome: tools.OutcomeUnknownTool,
		}
	}
	return e.Execute(ctx, call)
}
