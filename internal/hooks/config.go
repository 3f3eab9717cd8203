package hooks

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileSpec is one command-hook declaration from the workspace hooks
// file (.bluehawks/hooks.yaml).
type fileSpec struct {
	ID      string        `yaml:"id"`
	Event   string        `yaml:"event"`
	Matcher string        `yaml:"matcher"`
	Command string        `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
	Async   bool          `yaml:"async"`
}

type hooksFile struct {
	Hooks []fileSpec `yaml:"hooks"`
}

var validEvents = map[Event]bool{
	SessionStart:       true,
	UserPromptSubmit:   true,
	PreToolUse:         true,
	PostToolUse:        true,
	PostToolUseFailure: true,
	Stop:               true,
	SessionEnd:         true,
}

// LoadFile reads command-hook declarations from a YAML file and
// registers them on the pipeline. A missing file is not an error.
func LoadFile(p *Pipeline, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read hooks file: %w", err)
	}

	var file hooksFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse hooks file: %w", err)
	}

	registered := 0
	for i, spec := range file.Hooks {
		if spec.Command == "" {
			return registered, fmt.Errorf("hooks[%d]: command is required", i)
		}
		event := Event(spec.Event)
		if !validEvents[event] {
			return registered, fmt.Errorf("hooks[%d]: unknown event %q", i, spec.Event)
		}
		id := spec.ID
		if id == "" {
			id = fmt.Sprintf("file-hook-%d", i)
		}
		err := p.Register(Descriptor{
			ID:      id,
			Event:   event,
			Matcher: spec.Matcher,
			Command: spec.Command,
			Timeout: spec.Timeout,
			Async:   spec.Async,
		})
		if err != nil {
			return registered, err
		}
		registered++
	}
	return registered, nil
}
