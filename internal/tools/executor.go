package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/bluehawksai/bluehawks-cli/internal/llm"
)

// ApprovalMode controls when the user is prompted before tool execution.
type ApprovalMode string

const (
	ApprovalAlways     ApprovalMode = "always"
	ApprovalNever      ApprovalMode = "never"
	ApprovalUnsafeOnly ApprovalMode = "unsafe-only"
)

// ApprovalFunc asks the user to approve a tool invocation.
type ApprovalFunc func(name string, args map[string]any) bool

// Outcome classifies a single tool dispatch.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeMalformedArgs Outcome = "malformed_args"
	OutcomeUnknownTool   Outcome = "unknown_tool"
	OutcomeDenied        Outcome = "denied"
	OutcomeHandlerError  Outcome = "handler_error"
)

// DefaultMaxOutputChars is the tool output ceiling before truncation.
const DefaultMaxOutputChars = 50_000

const truncationMarker = "… (output truncated)"

// Execution pairs the tool result with its classification so callers
// can fire the matching hook exactly once per dispatch.
type Execution struct {
	Result  llm.ToolResult
	Outcome Outcome
	Args    map[string]any
}

// Executor parses arguments, gates execution behind the approval
// policy, invokes handlers, and truncates oversized output.
type Executor struct {
	registry *Registry
	logger   *zap.Logger

	mu        sync.Mutex
	mode      ApprovalMode
	approve   ApprovalFunc
	maxOutput int
}

// NewExecutor builds an executor over a registry.
func NewExecutor(registry *Registry, mode ApprovalMode, logger *zap.Logger) *Executor {
	if mode == "" {
		mode = ApprovalUnsafeOnly
	}
	return &Executor{
		registry:  registry,
		logger:    logger,
		mode:      mode,
		maxOutput: DefaultMaxOutputChars,
	}
}

// SetApprovalMode toggles the approval policy at runtime.
func (e *Executor) SetApprovalMode(mode ApprovalMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = mode
}

// ApprovalMode returns the active approval policy.
func (e *Executor) ApprovalMode() ApprovalMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// SetApprovalCallback installs the user prompt callback.
func (e *Executor) SetApprovalCallback(fn ApprovalFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.approve = fn
}

// SetMaxOutputChars overrides the output ceiling.
func (e *Executor) SetMaxOutputChars(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n > 0 {
		e.maxOutput = n
	}
}

// Execute runs a single tool call. Failures that short-circuit (unknown
// tool, malformed arguments) never reach the handler, so re-executing
// them is side-effect free.
func (e *Executor) Execute(ctx context.Context, call llm.ToolCall) Execution {
	name := call.Function.Name

	var args map[string]any
	raw := call.Function.Arguments
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return Execution{
			Result: llm.ToolResult{
				ToolCallID: call.ID,
				Content:    fmt.Sprintf("Invalid tool arguments: %v", err),
				IsError:    true,
			},
			Outcome: OutcomeMalformedArgs,
		}
	}

	desc, ok := e.registry.Get(name)
	if !ok {
		return Execution{
			Result: llm.ToolResult{
				ToolCallID: call.ID,
				Content:    fmt.Sprintf("Unknown tool: %s", name),
				IsError:    true,
			},
			Outcome: OutcomeUnknownTool,
			Args:    args,
		}
	}

	if e.needsApproval(desc) {
		e.mu.Lock()
		approve := e.approve
		e.mu.Unlock()
		if approve != nil && !approve(name, args) {
			return Execution{
				Result: llm.ToolResult{
					ToolCallID: call.ID,
					Content:    fmt.Sprintf("Tool %s denied by user", name),
					IsError:    true,
				},
				Outcome: OutcomeDenied,
				Args:    args,
			}
		}
	}

	output, err := desc.Handler(ctx, args)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("tool handler failed", zap.String("tool", name), zap.Error(err))
		}
		return Execution{
			Result: llm.ToolResult{
				ToolCallID: call.ID,
				Content:    err.Error(),
				IsError:    true,
			},
			Outcome: OutcomeHandlerError,
			Args:    args,
		}
	}

	return Execution{
		Result: llm.ToolResult{
			ToolCallID: call.ID,
			Content:    e.truncate(output),
		},
		Outcome: OutcomeOK,
		Args:    args,
	}
}

// ExecuteBatch runs calls sequentially, preserving order.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []llm.ToolCall) []Execution {
	out := make([]Execution, 0, len(calls))
	for _, call := range calls {
		out = append(out, e.Execute(ctx, call))
	}
	return out
}

func (e *Executor) needsApproval(d *Descriptor) bool {
	e.mu.Lock()
	mode := e.mode
	e.mu.Unlock()
	switch mode {
	case ApprovalAlways:
		return true
	case ApprovalNever:
		return false
	default:
		return !d.AutoSafe
	}
}

func (e *Executor) truncate(s string) string {
	e.mu.Lock()
	limit := e.maxOutput
	e.mu.Unlock()
	if len(s) <= limit {
		return s
	}
	return s[:limit] + truncationMarker
}
