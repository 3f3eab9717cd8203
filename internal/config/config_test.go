package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	configYAML := `
version: "0.1.0"
api:
  base_url: https://llm.internal/v1
  model: qwen2.5-coder
agent:
  max_iterations: 6
  approval_mode: always
tools:
  denied_commands: [curl]
mcp_servers:
  - name: files
    command: mcp-files
    args: ["--root", "."]
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(configYAML), 0o644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, "https://llm.internal/v1", cfg.API.BaseURL)
	require.Equal(t, "qwen2.5-coder", cfg.API.Model)
	require.Equal(t, 6, cfg.Agent.MaxIterations)
	require.Equal(t, "always", cfg.Agent.ApprovalMode)
	require.Equal(t, []string{"curl"}, cfg.Tools.DeniedCommands)
	require.Len(t, cfg.MCP, 1)
	require.Equal(t, "files", cfg.MCP[0].Name)

	// defaults fill the rest
	require.Equal(t, 15, cfg.Agent.MaxTurns)
	require.Equal(t, 50000, cfg.Agent.MaxOutputChars)
	require.Equal(t, 120, cfg.API.TimeoutSeconds)
	require.InDelta(t, 0.7, cfg.Memory.MinSimilarity, 1e-9)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("api:\n  base_url: https://x/v1\n"), 0o644))

	t.Setenv("BLUEHAWKS_API_URL", "https://override/v1")
	t.Setenv("BLUEHAWKS_API_KEY", "sk-env")
	t.Setenv("BLUEHAWKS_MODEL", "gpt-env")
	t.Setenv("BLUEHAWKS_AGENT_MAX_ITERATIONS", "12")

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, "https://override/v1", cfg.API.BaseURL)
	require.Equal(t, "sk-env", cfg.API.Key)
	require.Equal(t, "gpt-env", cfg.API.Model)
	require.Equal(t, 12, cfg.Agent.MaxIterations)
}

func TestValidateRejectsBadApprovalMode(t *testing.T) {
	cfg := Config{
		API:     APIConfig{BaseURL: "https://x", TimeoutSeconds: 10},
		Agent:   AgentConfig{MaxIterations: 1, MaxTurns: 1, ApprovalMode: "sometimes", MaxOutputChars: 100},
		Tools:   ToolsConfig{ExecTimeoutSeconds: 10},
		Session: SessionConfig{MaxMessages: 10},
	}
	require.ErrorContains(t, cfg.Validate(), "approval_mode")
}

func TestValidateRejectsMCPServerWithoutCommand(t *testing.T) {
	cfg := Config{
		API:     APIConfig{BaseURL: "https://x", TimeoutSeconds: 10},
		Agent:   AgentConfig{MaxIterations: 1, MaxTurns: 1, ApprovalMode: "never", MaxOutputChars: 100},
		Tools:   ToolsConfig{ExecTimeoutSeconds: 10},
		Session: SessionConfig{MaxMessages: 10},
		MCP:     []MCPServer{{Name: "broken"}},
	}
	require.ErrorContains(t, cfg.Validate(), "command is required")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := `
# comment line
PLAIN=value
DOUBLE="quoted value"
SINGLE='single quoted'
EMPTY=
BROKEN LINE
`
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0o644))

	for _, key := range []string{"PLAIN", "DOUBLE", "SINGLE", "EMPTY"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	LoadDotEnv(envPath)
	require.Equal(t, "value", os.Getenv("PLAIN"))
	require.Equal(t, "quoted value", os.Getenv("DOUBLE"))
	require.Equal(t, "single quoted", os.Getenv("SINGLE"))
	require.Equal(t, "", os.Getenv("EMPTY"))
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("KEEP=from-file\n"), 0o644))

	t.Setenv("KEEP", "from-process")
	LoadDotEnv(envPath)
	require.Equal(t, "from-process", os.Getenv("KEEP"))
}
