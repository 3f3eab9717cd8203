// Package core assembles the agent execution core from configuration:
// completion client, tool registry and executor, hook pipeline,
// external-tool bridge, memory and session stores, and orchestrator.
package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/bluehawksai/bluehawks-cli/internal/bridge"
	"github.com/bluehawksai/bluehawks-cli/internal/config"
	"github.com/bluehawksai/bluehawks-cli/internal/hooks"
	"github.com/bluehawksai/bluehawks-cli/internal/llm"
	"github.com/bluehawksai/bluehawks-cli/internal/memory"
	"github.com/bluehawksai/bluehawks-cli/internal/observability"
	"github.com/bluehawksai/bluehawks-cli/internal/orchestrator"
	"github.com/bluehawksai/bluehawks-cli/internal/session"
	"github.com/bluehawksai/bluehawks-cli/internal/tools"
)

// Core holds the assembled subsystems. Tests construct isolated
// instances; nothing here is process-global.
type Core struct {
	Config       *config.Config
	Logger       *zap.Logger
	Client       *llm.Client
	Registry     *tools.Registry
	Executor     *tools.Executor
	Hooks        *hooks.Pipeline
	Bridge       *bridge.Manager
	Memory       *memory.Store
	Session      *session.Session
	Storage      *session.Storage
	Orchestrator *orchestrator.Orchestrator
	Metrics      *observability.Metrics
}

// Options tweak assembly.
type Options struct {
	// Resume rehydrates the session with this name or id.
	Resume string
	// Continue rehydrates the most recent session.
	Continue bool
	// PlanMode starts with the plan-mode addendum active.
	PlanMode bool
}

// Build wires the core from configuration. Dynamic registration by the
// bridge happens here, before the first agent turn.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*Core, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	client := llm.NewClient(cfg.API.BaseURL, cfg.API.Key, cfg.API.Model,
		llm.WithTimeout(time.Duration(cfg.API.TimeoutSeconds)*time.Second),
		llm.WithLogger(logger),
	)

	metrics := observability.NewMetrics()
	client.OnRetry = func(int, error) { metrics.RecordAPIRetry() }

	registry := tools.NewRegistry()
	if _, err := tools.RegisterBuiltins(registry, tools.BuiltinConfig{
		WorkDir:            workDir,
		AllowExec:          cfg.Tools.AllowExec,
		AllowFileWrite:     cfg.Tools.AllowFileWrite,
		AllowedCommands:    cfg.Tools.AllowedCommands,
		DeniedCommands:     cfg.Tools.DeniedCommands,
		ExecTimeoutSeconds: cfg.Tools.ExecTimeoutSeconds,
	}); err != nil {
		return nil, err
	}

	executor := tools.NewExecutor(registry, tools.ApprovalMode(cfg.Agent.ApprovalMode), logger)
	executor.SetMaxOutputChars(cfg.Agent.MaxOutputChars)

	pipeline := hooks.NewPipeline(logger)
	hooksPath := cfg.Hooks.File
	if !filepath.IsAbs(hooksPath) {
		hooksPath = filepath.Join(workDir, hooksPath)
	}
	if n, err := hooks.LoadFile(pipeline, hooksPath); err != nil {
		return nil, fmt.Errorf("load hooks: %w", err)
	} else if n > 0 && logger != nil {
		logger.Info("registered workspace hooks", zap.Int("count", n))
	}

	bridgeMgr := bridge.NewManager(logger)
	if len(cfg.MCP) > 0 {
		specs := make([]bridge.ServerSpec, 0, len(cfg.MCP))
		for _, s := range cfg.MCP {
			specs = append(specs, bridge.ServerSpec{
				Name:    s.Name,
				Command: s.Command,
				Args:    s.Args,
				Env:     s.Env,
			})
		}
		bridgeMgr.ConnectAll(ctx, specs, registry)
	}

	var memStore *memory.Store
	if cfg.Memory.Enabled {
		memStore, err = memory.Open(cfg.Memory.Path, client, client, logger)
		if err != nil {
			// A broken memory store degrades recall, not the agent.
			if logger != nil {
				logger.Warn("memory store unavailable", zap.Error(err))
			}
			memStore = nil
		}
	}

	storage := session.NewStorage(workDir, cfg.Session.Dir)
	var sess *session.Session
	switch {
	case opts.Continue:
		sess, err = storage.Continue()
	case opts.Resume != "":
		sess, err = storage.Resume(opts.Resume)
	default:
		sess = session.New(workDir, cfg.API.Model)
	}
	if err != nil {
		return nil, err
	}
	sess.SetMaxMessages(cfg.Session.MaxMessages)

	orch := orchestrator.New(orchestrator.Config{
		Client:              client,
		Registry:            registry,
		Executor:            executor,
		Hooks:               pipeline,
		Memory:              memStore,
		Session:             sess,
		Metrics:             metrics,
		Logger:              logger,
		Model:               cfg.API.Model,
		Temperature:         cfg.Agent.Temperature,
		ProjectPath:         workDir,
		CustomPrompt:        cfg.Agent.SystemPrompt,
		PlanMode:            opts.PlanMode,
		MaxTurns:            cfg.Agent.MaxTurns,
		MemoryMinSimilarity: cfg.Memory.MinSimilarity,
	})
	if opts.Continue || opts.Resume != "" {
		orch.SeedHistory(replayable(sess))
	}

	return &Core{
		Config:       cfg,
		Logger:       logger,
		Client:       client,
		Registry:     registry,
		Executor:     executor,
		Hooks:        pipeline,
		Bridge:       bridgeMgr,
		Memory:       memStore,
		Session:      sess,
		Storage:      storage,
		Orchestrator: orch,
		Metrics:      metrics,
	}, nil
}

// Close tears the core down: SessionEnd hook, bridge disconnects, and
// store closes.
func (c *Core) Close(ctx context.Context) {
	if c.Orchestrator != nil {
		c.Orchestrator.EndSession(ctx)
	}
	if c.Bridge != nil {
		c.Bridge.CloseAll()
	}
	if c.Memory != nil {
		_ = c.Memory.Close()
	}
}

// replayable extracts the user/assistant exchanges from a rehydrated
// session for the orchestrator's running history.
func replayable(s *session.Session) []llm.ChatMessage {
	var out []llm.ChatMessage
	for _, m := range s.Snapshot() {
		if m.Role == llm.RoleUser || m.Role == llm.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}
