// Package hooks implements the synchronous interception pipeline:
// ordered per-event handlers that can observe, amend, or block core
// operations.
package hooks

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event identifies when a hook fires.
type Event string

const (
	SessionStart       Event = "SessionStart"
	UserPromptSubmit   Event = "UserPromptSubmit"
	PreToolUse         Event = "PreToolUse"
	PostToolUse        Event = "PostToolUse"
	PostToolUseFailure Event = "PostToolUseFailure"
	Stop               Event = "Stop"
	SessionEnd         Event = "SessionEnd"
)

// DefaultTimeout bounds a single handler invocation.
const DefaultTimeout = 30 * time.Second

// Input carries the event payload. Event-specific fields stay zero when
// not applicable.
type Input struct {
	SessionID    string         `json:"session_id"`
	ProjectPath  string         `json:"project_path"`
	Model        string         `json:"model"`
	Timestamp    string         `json:"timestamp"`
	ToolName     string         `json:"tool_name,omitempty"`
	ToolInput    map[string]any `json:"tool_input,omitempty"`
	ToolOutput   string         `json:"tool_output,omitempty"`
	Duration     float64        `json:"duration,omitempty"`
	Error        string         `json:"error,omitempty"`
	Prompt       string         `json:"prompt,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	MessageCount int            `json:"message_count,omitempty"`
	TokensUsed   int            `json:"tokens_used,omitempty"`
}

// Output is a handler's verdict. Only the first blocking output
// short-circuits the rest of the pipeline for that event.
type Output struct {
	Block         bool           `json:"block,omitempty"`
	BlockReason   string         `json:"block_reason,omitempty"`
	ModifiedInput map[string]any `json:"modified_input,omitempty"`
	AddContent    string         `json:"add_content,omitempty"`
}

// Func is an inline hook handler.
type Func func(ctx context.Context, input Input) (Output, error)

// Descriptor registers a handler for an event. Either Handler or
// Command must be set; Command-style hooks run through the platform
// shell with the input JSON in the HOOK_INPUT environment variable.
type Descriptor struct {
	ID      string
	Event   Event
	Matcher string
	Handler Func
	Command string
	Timeout time.Duration
	Async   bool

	matcherRe *regexp.Regexp
}

// Pipeline holds hooks in registration order.
type Pipeline struct {
	mu     sync.RWMutex
	hooks  []*Descriptor
	logger *zap.Logger
}

// NewPipeline creates an empty hook pipeline.
func NewPipeline(logger *zap.Logger) *Pipeline {
	return &Pipeline{logger: logger}
}

// Register appends a hook. An invalid matcher regex is a registration
// error; a missing handler and command likewise.
func (p *Pipeline) Register(d Descriptor) error {
	if d.ID == "" {
		return fmt.Errorf("hook id is required")
	}
	if d.Handler == nil && d.Command == "" {
		return fmt.Errorf("hook %s: handler or command is required", d.ID)
	}
	if d.Matcher != "" {
		re, err := regexp.Compile(d.Matcher)
		if err != nil {
			return fmt.Errorf("hook %s: invalid matcher: %w", d.ID, err)
		}
		d.matcherRe = re
	}
	if d.Timeout <= 0 {
		d.Timeout = DefaultTimeout
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, &d)
	return nil
}

// Unregister removes a hook by id.
func (p *Pipeline) Unregister(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, d := range p.hooks {
		if d.ID == id {
			p.hooks = append(p.hooks[:i], p.hooks[i+1:]...)
			return
		}
	}
}

// Count returns the number of registered hooks.
func (p *Pipeline) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.hooks)
}

// Execute runs all hooks registered for event in order, returning the
// collected outputs. Handler timeouts and errors are logged and skipped
// without aborting the pipeline; the first blocking output halts it.
func (p *Pipeline) Execute(ctx context.Context, event Event, input Input) []Output {
	p.mu.RLock()
	matched := make([]*Descriptor, 0, len(p.hooks))
	for _, d := range p.hooks {
		if d.Event != event {
			continue
		}
		if d.matcherRe != nil && input.ToolName != "" && !d.matcherRe.MatchString(input.ToolName) {
			continue
		}
		matched = append(matched, d)
	}
	p.mu.RUnlock()

	var outputs []Output
	for _, d := range matched {
		if d.Async {
			go func(d *Descriptor) {
				if _, err := p.invoke(ctx, d, input); err != nil && p.logger != nil {
					p.logger.Warn("async hook failed", zap.String("hook", d.ID), zap.Error(err))
				}
			}(d)
			continue
		}

		out, err := p.invoke(ctx, d, input)
		if err != nil {
			if p.logger != nil {
				p.logger.Warn("hook failed", zap.String("hook", d.ID), zap.String("event", string(event)), zap.Error(err))
			}
			continue
		}
		if out == nil {
			continue
		}
		outputs = append(outputs, *out)
		if out.Block {
			return outputs
		}
	}
	return outputs
}

// invoke races the handler against its timeout. The losing handler is
// cancelled through its context so it does not leak.
func (p *Pipeline) invoke(ctx context.Context, d *Descriptor, input Input) (*Output, error) {
	if d.Command != "" {
		return runCommandHook(ctx, d, input)
	}

	hctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	type result struct {
		out Output
		err error
	}
	ch := make(chan result, 1)
	go func() {
		out, err := d.Handler(hctx, input)
		ch <- result{out: out, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return &r.out, nil
	case <-hctx.Done():
		return nil, fmt.Errorf("hook %s timed out after %s", d.ID, d.Timeout)
	}
}
