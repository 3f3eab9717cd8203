package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluehawksai/bluehawks-cli/internal/agent"
	"github.com/bluehawksai/bluehawks-cli/internal/hooks"
	"github.com/bluehawksai/bluehawks-cli/internal/llm"
	llmmock "github.com/bluehawksai/bluehawks-cli/internal/llm/mock"
	"github.com/bluehawksai/bluehawks-cli/internal/memory"
	"github.com/bluehawksai/bluehawks-cli/internal/session"
	"github.com/bluehawksai/bluehawks-cli/internal/tools"
)

func reply(content string) llm.ChatResponse {
	return llm.ChatResponse{
		Message:      llm.ChatMessage{Role: llm.RoleAssistant, Content: content},
		FinishReason: "stop",
		Usage:        llm.Usage{TotalTokens: 7},
	}
}

func testOrchestrator(t *testing.T, client agent.CompletionService, pipeline *hooks.Pipeline) *Orchestrator {
	t.Helper()
	reg := tools.NewRegistry()
	reg.Register(tools.Descriptor{
		Name:     "read_file",
		AutoSafe: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "data", nil
		},
	})
	reg.Register(tools.Descriptor{
		Name: "run_command",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "ran", nil
		},
	})
	return New(Config{
		Client:      client,
		Registry:    reg,
		Executor:    tools.NewExecutor(reg, tools.ApprovalNever, nil),
		Hooks:       pipeline,
		Session:     session.New(t.TempDir(), "test-model"),
		Model:       "test-model",
		ProjectPath: t.TempDir(),
		MaxTurns:    5,
		WordDelay:   -1,
	})
}

func TestChatMaintainsRunningHistory(t *testing.T) {
	calls := 0
	client := &llmmock.Client{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			calls++
			if calls == 2 {
				// system + prior user + prior assistant + current user
				require.Len(t, req.Messages, 4)
				require.Equal(t, "first answer", req.Messages[2].Content)
			}
			if calls == 1 {
				return reply("first answer"), nil
			}
			return reply("second answer"), nil
		},
	}
	o := testOrchestrator(t, client, nil)

	_, err := o.Chat(context.Background(), "first question", agent.Callbacks{})
	require.NoError(t, err)
	_, err = o.Chat(context.Background(), "second question", agent.Callbacks{})
	require.NoError(t, err)

	history := o.History()
	require.Len(t, history, 4)
	require.Equal(t, llm.RoleUser, history[0].Role)
	require.Equal(t, "second answer", history[3].Content)
}

func TestChatRecordsSessionMetadata(t *testing.T) {
	client := &llmmock.Client{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			return reply("answer"), nil
		},
	}
	o := testOrchestrator(t, client, nil)
	_, err := o.Chat(context.Background(), "question", agent.Callbacks{})
	require.NoError(t, err)

	s := o.cfg.Session
	require.Equal(t, 2, s.MessageCount())
	require.Equal(t, 7, s.Metadata.TotalTokens)
}

func TestSessionStartHookFiresOnce(t *testing.T) {
	pipeline := hooks.NewPipeline(nil)
	fired := 0
	require.NoError(t, pipeline.Register(hooks.Descriptor{
		ID:    "starter",
		Event: hooks.SessionStart,
		Handler: func(ctx context.Context, input hooks.Input) (hooks.Output, error) {
			fired++
			return hooks.Output{}, nil
		},
	}))

	client := &llmmock.Client{ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
		return reply("x"), nil
	}}
	o := testOrchestrator(t, client, pipeline)
	require.Equal(t, 1, fired)

	_, err := o.Chat(context.Background(), "q", agent.Callbacks{})
	require.NoError(t, err)
	require.Equal(t, 1, fired)
}

func TestUserPromptSubmitBlockStopsTurn(t *testing.T) {
	pipeline := hooks.NewPipeline(nil)
	require.NoError(t, pipeline.Register(hooks.Descriptor{
		ID:    "gate",
		Event: hooks.UserPromptSubmit,
		Handler: func(ctx context.Context, input hooks.Input) (hooks.Output, error) {
			require.Equal(t, "forbidden topic", input.Prompt)
			return hooks.Output{Block: true, BlockReason: "not allowed"}, nil
		},
	}))

	client := &llmmock.Client{ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
		t.Fatal("completion must not be called for a blocked prompt")
		return llm.ChatResponse{}, nil
	}}
	o := testOrchestrator(t, client, pipeline)

	_, err := o.Chat(context.Background(), "forbidden topic", agent.Callbacks{})
	require.ErrorContains(t, err, "not allowed")
	require.Empty(t, o.History())
}

func TestSystemPromptAssembly(t *testing.T) {
	memories := []memory.SearchResult{
		{Memory: memory.Memory{Type: memory.TypePreference, Content: "prefer tabs"}, Similarity: 0.9},
	}
	prompt := buildSystemPrompt("", memories, "- src/\n- go.mod", "This repo is a CLI.", true)

	require.Contains(t, prompt, "Bluehawks")
	require.Contains(t, prompt, memorySectionOpen)
	require.Contains(t, prompt, "[preference] prefer tabs")
	require.Contains(t, prompt, memorySectionClose)
	require.Contains(t, prompt, "- src/")
	require.Contains(t, prompt, "This repo is a CLI.")
	require.Contains(t, prompt, "Plan mode is active")

	custom := buildSystemPrompt("CUSTOM PROMPT", nil, "", "", false)
	require.Contains(t, custom, "CUSTOM PROMPT")
	require.NotContains(t, custom, memorySectionOpen)
	require.NotContains(t, custom, "Plan mode")
}

func TestContextFileLoadedAtStartup(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ContextFileName), []byte("house rules"), 0o644))

	client := &llmmock.Client{ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
		require.Contains(t, req.Messages[0].Content, "house rules")
		return reply("ok"), nil
	}}
	o := New(Config{
		Client:      client,
		Registry:    tools.NewRegistry(),
		Executor:    tools.NewExecutor(tools.NewRegistry(), tools.ApprovalNever, nil),
		Model:       "m",
		ProjectPath: dir,
		MaxTurns:    3,
		WordDelay:   -1,
	})
	_, err := o.Chat(context.Background(), "hello", agent.Callbacks{})
	require.NoError(t, err)
}

func TestRunSubAgentRestrictsTools(t *testing.T) {
	client := &llmmock.Client{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			for _, schema := range req.Tools {
				require.NotEqual(t, "run_command", schema.Function.Name,
					"researcher must not see run_command")
			}
			return reply("findings"), nil
		},
	}
	o := testOrchestrator(t, client, nil)

	resp, err := o.RunSubAgent(context.Background(), "researcher", "what is here", agent.Callbacks{})
	require.NoError(t, err)
	require.Equal(t, "findings", resp.Content)
	require.Empty(t, o.History(), "sub-agents do not share the running history")
}

func TestRunSubAgentUnknownName(t *testing.T) {
	o := testOrchestrator(t, &llmmock.Client{}, nil)
	_, err := o.RunSubAgent(context.Background(), "wizard", "task", agent.Callbacks{})
	require.Error(t, err)
}
