package orchestrator

import (
	"context"
	"fmt"

	"github.com/bluehawksai/bluehawks-cli/internal/agent"
	"github.com/bluehawksai/bluehawks-cli/internal/tools"
)

// subAgentSpec is a predefined specialization with a restricted tool
// subset and its own system prompt.
type subAgentSpec struct {
	prompt string
	tools  []string
}

var subAgents = map[string]subAgentSpec{
	"coder": {
		prompt: `You are a focused coding sub-agent. Complete the given implementation task using the workspace tools, then summarize exactly what you changed.`,
		tools:  []string{"read_file", "write_file", "list_directory", "find_files", "search_files"},
	},
	"researcher": {
		prompt: `You are a read-only research sub-agent. Inspect the workspace to answer the given question. Never modify anything; report findings with file references.`,
		tools:  []string{"read_file", "list_directory", "find_files", "search_files"},
	},
	"shell": {
		prompt: `You are a command-running sub-agent. Accomplish the given task with shell commands, reporting each command and its output.`,
		tools:  []string{"run_command", "read_file", "list_directory"},
	},
}

// SubAgentNames lists the available specializations.
func SubAgentNames() []string {
	return []string{"coder", "researcher", "shell"}
}

// RunSubAgent executes a task in a specialization that does not share
// the main running history.
func (o *Orchestrator) RunSubAgent(ctx context.Context, name, task string, cb agent.Callbacks) (agent.Response, error) {
	spec, ok := subAgents[name]
	if !ok {
		return agent.Response{}, fmt.Errorf("unknown sub-agent %q", name)
	}

	restricted := tools.NewRegistry()
	if o.cfg.Registry != nil {
		for _, toolName := range spec.tools {
			if d, ok := o.cfg.Registry.Get(toolName); ok {
				restricted.Register(*d)
			}
		}
	}

	runner := agent.New(agent.Config{
		Client:        o.cfg.Client,
		Registry:      restricted,
		Executor:      o.cfg.Executor,
		Hooks:         o.cfg.Hooks,
		Logger:        o.cfg.Logger,
		SystemPrompt:  spec.prompt,
		Model:         o.cfg.Model,
		Temperature:   o.cfg.Temperature,
		MaxIterations: o.cfg.MaxTurns,
		SessionID:     o.sessionID(),
		ProjectPath:   o.cfg.ProjectPath,
		WordDelay:     o.cfg.WordDelay,
	})
	return runner.Run(ctx, task, cb, nil)
}
