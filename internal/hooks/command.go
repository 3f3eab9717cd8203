package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// runCommandHook executes a shell-command hook. The full input JSON is
// serialized into the HOOK_INPUT environment variable. Exit zero with
// empty stdout means no output; zero with stdout is parsed best-effort
// as an Output (unparsable stdout is silently ignored); non-zero exit
// synthesizes a block whose reason is stderr, or the exit code when
// stderr is empty.
func runCommandHook(ctx context.Context, d *Descriptor, input Input) (*Output, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("hook %s: marshal input: %w", d.ID, err)
	}

	hctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	cmd := exec.CommandContext(hctx, "sh", "-c", d.Command)
	cmd.Env = append(os.Environ(), "HOOK_INPUT="+string(payload))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if hctx.Err() != nil {
		return nil, fmt.Errorf("hook %s timed out after %s", d.ID, d.Timeout)
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			reason := strings.TrimSpace(stderr.String())
			if reason == "" {
				reason = fmt.Sprintf("Hook exited with code %d", exitErr.ExitCode())
			}
			return &Output{Block: true, BlockReason: reason}, nil
		}
		return nil, fmt.Errorf("hook %s: %w", d.ID, runErr)
	}

	body := strings.TrimSpace(stdout.String())
	if body == "" {
		return nil, nil
	}
	var out Output
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, nil
	}
	return &out, nil
}
