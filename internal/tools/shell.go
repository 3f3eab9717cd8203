package tools

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"
)

// Shell executes commands through the platform shell with guard checks.
type Shell struct {
	WorkingDir     string
	Guard          *CommandGuard
	Timeout        time.Duration
	AllowExecution bool
}

// ShellResult carries output and status code.
type ShellResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Run executes a command line if the guard allows it. On timeout the
// process group gets SIGTERM; if the shell has not exited five seconds
// later, the shell process itself is killed.
func (s *Shell) Run(ctx context.Context, command string) (ShellResult, error) {
	if !s.AllowExecution {
		return ShellResult{}, errors.New("execution disabled by configuration")
	}
	guard := s.Guard
	if guard == nil {
		guard = &CommandGuard{}
	}
	if err := guard.CheckCommand(command); err != nil {
		return ShellResult{}, err
	}

	timeout := s.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if s.WorkingDir != "" {
		cmd.Dir = s.WorkingDir
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := ShellResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		ExitCode: func() int {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return exitErr.ExitCode()
			}
			if err != nil {
				return -1
			}
			return 0
		}(),
	}
	return res, err
}
