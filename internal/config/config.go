package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config describes the top-level application configuration loaded from
// YAML and ENV.
type Config struct {
	Version string        `mapstructure:"version"`
	API     APIConfig     `mapstructure:"api"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Tools   ToolsConfig   `mapstructure:"tools"`
	Memory  MemoryConfig  `mapstructure:"memory"`
	Session SessionConfig `mapstructure:"session"`
	Hooks   HooksConfig   `mapstructure:"hooks"`
	MCP     []MCPServer   `mapstructure:"mcp_servers"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
}

// APIConfig points at the OpenAI-compatible completion service.
type APIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Key            string `mapstructure:"key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// AgentConfig describes agent-loop runtime parameters.
type AgentConfig struct {
	MaxIterations  int     `mapstructure:"max_iterations"`
	MaxTurns       int     `mapstructure:"max_turns"`
	ApprovalMode   string  `mapstructure:"approval_mode"` // always, never, unsafe-only
	MaxOutputChars int     `mapstructure:"max_output_chars"`
	Temperature    float64 `mapstructure:"temperature"`
	PlanMode       bool    `mapstructure:"plan_mode"`
	SystemPrompt   string  `mapstructure:"system_prompt"`
}

// ToolsConfig configures the built-in tool set.
type ToolsConfig struct {
	AllowExec          bool     `mapstructure:"allow_exec"`
	AllowFileWrite     bool     `mapstructure:"allow_file_write"`
	AllowedCommands    []string `mapstructure:"allowed_commands"`
	DeniedCommands     []string `mapstructure:"denied_commands"`
	ExecTimeoutSeconds int      `mapstructure:"exec_timeout_seconds"`
}

// MemoryConfig controls the long-term memory store.
type MemoryConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	Path          string  `mapstructure:"path"`
	MinSimilarity float64 `mapstructure:"min_similarity"`
}

// SessionConfig controls transcript persistence.
type SessionConfig struct {
	MaxMessages int    `mapstructure:"max_messages"`
	Dir         string `mapstructure:"dir"`
}

// HooksConfig points at the workspace hooks file.
type HooksConfig struct {
	File string `mapstructure:"file"`
}

// MCPServer describes one external-tool helper process.
type MCPServer struct {
	Name    string            `mapstructure:"name"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig describes daemon settings.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	Transport      string `mapstructure:"transport"` // connect or ndjson
}

// HomeDir returns the per-user configuration directory (~/.bluehawks).
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bluehawks"
	}
	return filepath.Join(home, ".bluehawks")
}

// Load reads configuration from the provided path or the default
// search locations. Environment variables override file values (prefix
// BLUEHAWKS_, dots replaced with underscores); ~/.bluehawks/.env is
// applied to the process environment first.
func Load(path string) (*Config, error) {
	LoadDotEnv(filepath.Join(HomeDir(), ".env"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BLUEHAWKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The documented short forms map onto their nested keys.
	_ = v.BindEnv("api.base_url", "BLUEHAWKS_API_URL")
	_ = v.BindEnv("api.key", "BLUEHAWKS_API_KEY")
	_ = v.BindEnv("api.model", "BLUEHAWKS_MODEL")

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".bluehawks")
		v.AddConfigPath("configs")
		v.AddConfigPath(HomeDir())
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDotEnv applies KEY=VALUE lines (values optionally single- or
// double-quoted) to the process environment without overriding
// variables already set.
func LoadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}

// setDefaults populates sensible defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://api.openai.com/v1")
	v.SetDefault("api.timeout_seconds", 120)

	v.SetDefault("agent.max_iterations", 10)
	v.SetDefault("agent.max_turns", 15)
	v.SetDefault("agent.approval_mode", "unsafe-only")
	v.SetDefault("agent.max_output_chars", 50000)
	v.SetDefault("agent.temperature", 0.2)

	v.SetDefault("tools.allow_exec", true)
	v.SetDefault("tools.allow_file_write", true)
	v.SetDefault("tools.exec_timeout_seconds", 120)

	v.SetDefault("memory.enabled", true)
	v.SetDefault("memory.path", filepath.Join(HomeDir(), "memory.db"))
	v.SetDefault("memory.min_similarity", 0.7)

	v.SetDefault("session.max_messages", 100)
	v.SetDefault("session.dir", HomeDir())

	v.SetDefault("hooks.file", filepath.Join(".bluehawks", "hooks.yaml"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.transport", "connect")
}

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("api.base_url is required")
	}
	if c.API.TimeoutSeconds <= 0 {
		return errors.New("api.timeout_seconds must be > 0")
	}

	switch strings.ToLower(strings.TrimSpace(c.Agent.ApprovalMode)) {
	case "always", "never", "unsafe-only":
	default:
		return fmt.Errorf("agent.approval_mode must be one of always, never, unsafe-only, got %q", c.Agent.ApprovalMode)
	}
	if c.Agent.MaxIterations <= 0 {
		return errors.New("agent.max_iterations must be > 0")
	}
	if c.Agent.MaxTurns <= 0 {
		return errors.New("agent.max_turns must be > 0")
	}
	if c.Agent.MaxOutputChars <= 0 {
		return errors.New("agent.max_output_chars must be > 0")
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		return errors.New("agent.temperature must be within [0,2]")
	}

	if c.Tools.ExecTimeoutSeconds <= 0 {
		return errors.New("tools.exec_timeout_seconds must be > 0")
	}

	if c.Memory.MinSimilarity < 0 || c.Memory.MinSimilarity > 1 {
		return errors.New("memory.min_similarity must be within [0,1]")
	}

	if c.Session.MaxMessages <= 0 {
		return errors.New("session.max_messages must be > 0")
	}

	for i, server := range c.MCP {
		if strings.TrimSpace(server.Name) == "" {
			return fmt.Errorf("mcp_servers[%d]: name is required", i)
		}
		if strings.TrimSpace(server.Command) == "" {
			return fmt.Errorf("mcp_servers[%d]: command is required", i)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Server.Transport)) {
	case "", "connect", "ndjson":
	default:
		return fmt.Errorf("server.transport must be one of connect or ndjson, got %q", c.Server.Transport)
	}

	return nil
}
