package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BuiltinConfig controls the built-in tool set.
type BuiltinConfig struct {
	WorkDir            string
	AllowExec          bool
	AllowFileWrite     bool
	AllowedCommands    []string
	DeniedCommands     []string
	ExecTimeoutSeconds int
}

// RegisterBuiltins installs the core workspace tools. Read-only tools
// are auto-safe; anything that mutates state or runs a process is not.
func RegisterBuiltins(reg *Registry, cfg BuiltinConfig) (*Workspace, error) {
	ws, err := NewWorkspace(cfg.WorkDir, cfg.AllowFileWrite)
	if err != nil {
		return nil, fmt.Errorf("build workspace: %w", err)
	}

	shell := &Shell{
		WorkingDir: ws.BaseDir(),
		Guard: &CommandGuard{
			Allowed: cfg.AllowedCommands,
			Denied:  cfg.DeniedCommands,
		},
		Timeout:        time.Duration(cfg.ExecTimeoutSeconds) * time.Second,
		AllowExecution: cfg.AllowExec,
	}

	reg.Register(Descriptor{
		Name:        "read_file",
		Description: "Read a file relative to the workspace root",
		Parameters: Schema{
			Properties: map[string]Property{
				"path": {Type: "string", Description: "Relative file path"},
			},
			Required: []string{"path"},
		},
		AutoSafe: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			return ws.ReadFile(path)
		},
	})

	reg.Register(Descriptor{
		Name:        "write_file",
		Description: "Write content to a file inside the workspace",
		Parameters: Schema{
			Properties: map[string]Property{
				"path":    {Type: "string", Description: "Relative file path"},
				"content": {Type: "string", Description: "Full file content"},
			},
			Required: []string{"path", "content"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			content, _ := args["content"].(string)
			if err := ws.WriteFile(path, content); err != nil {
				return "", err
			}
			return fmt.Sprintf("Wrote %d bytes to %s", len(content), path), nil
		},
	})

	reg.Register(Descriptor{
		Name:        "list_directory",
		Description: "List entries of a workspace directory",
		Parameters: Schema{
			Properties: map[string]Property{
				"path": {Type: "string", Description: "Relative directory path"},
			},
			Required: []string{"path"},
		},
		AutoSafe: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			entries, err := ws.ListDir(path)
			if err != nil {
				return "", err
			}
			return strings.Join(entries, "\n"), nil
		},
	})

	reg.Register(Descriptor{
		Name:        "find_files",
		Description: "Find files by glob pattern under the workspace",
		Parameters: Schema{
			Properties: map[string]Property{
				"pattern": {Type: "string", Description: "Glob applied to file names, e.g. *.md"},
				"root":    {Type: "string", Description: "Directory to search from (default .)"},
			},
			Required: []string{"pattern"},
		},
		AutoSafe: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			pattern, _ := args["pattern"].(string)
			root, _ := args["root"].(string)
			if root == "" {
				root = "."
			}
			paths, err := ws.Glob(root, pattern, 50)
			if err != nil {
				return "", err
			}
			return strings.Join(paths, "\n"), nil
		},
	})

	reg.Register(Descriptor{
		Name:        "search_files",
		Description: "Search file contents for a literal pattern",
		Parameters: Schema{
			Properties: map[string]Property{
				"pattern": {Type: "string", Description: "Literal text to look for"},
				"root":    {Type: "string", Description: "Directory to search from (default .)"},
			},
			Required: []string{"pattern"},
		},
		AutoSafe: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			pattern, _ := args["pattern"].(string)
			root, _ := args["root"].(string)
			if root == "" {
				root = "."
			}
			matches, err := ws.Search(root, pattern, 20)
			if err != nil {
				return "", err
			}
			var b strings.Builder
			for _, m := range matches {
				fmt.Fprintf(&b, "%s:%d %s\n", m.Path, m.Line, m.Snippet)
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	})

	reg.Register(Descriptor{
		Name:        "run_command",
		Description: "Execute a shell command inside the workspace",
		Parameters: Schema{
			Properties: map[string]Property{
				"command": {Type: "string", Description: "Command line passed to the shell"},
			},
			Required: []string{"command"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			command, _ := args["command"].(string)
			res, err := shell.Run(ctx, command)
			if err != nil {
				if res.Stderr != "" {
					return "", fmt.Errorf("%s: %w", strings.TrimSpace(res.Stderr), err)
				}
				return "", err
			}
			out := res.Stdout
			if res.Stderr != "" {
				if out != "" {
					out += "\n"
				}
				out += res.Stderr
			}
			return out, nil
		},
	})

	return ws, nil
}
