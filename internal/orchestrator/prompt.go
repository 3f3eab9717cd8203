package orchestrator

import (
	"fmt"
	"strings"

	"github.com/bluehawksai/bluehawks-cli/internal/memory"
)

// defaultSystemPrompt is the base template when no override is set.
const defaultSystemPrompt = `You are Bluehawks, a coding agent running in the user's terminal. Work inside the current workspace, prefer minimal changes, use the available tools to inspect before editing, and ask before destructive actions. Be concise in answers.`

// planModeAddendum is appended when plan mode is active.
const planModeAddendum = `Plan mode is active: outline the steps you would take and wait for confirmation before making changes. Do not call tools that modify files or run commands.`

const (
	memorySectionOpen  = "=== Long-Term Memory ==="
	memorySectionClose = "=== End Long-Term Memory ==="
)

// buildSystemPrompt assembles the turn's system prompt: the template,
// retrieved memories inside sentinel lines, the workspace listing, the
// context file, and the plan-mode addendum.
func buildSystemPrompt(custom string, memories []memory.SearchResult, dirListing, contextFile string, planMode bool) string {
	base := custom
	if base == "" {
		base = defaultSystemPrompt
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(base))

	if len(memories) > 0 {
		b.WriteString("\n\n")
		b.WriteString(memorySectionOpen)
		b.WriteString("\n")
		for _, r := range memories {
			fmt.Fprintf(&b, "- [%s] %s\n", r.Memory.Type, r.Memory.Content)
		}
		b.WriteString(memorySectionClose)
	}

	if dirListing != "" {
		b.WriteString("\n\nWorkspace root:\n")
		b.WriteString(dirListing)
	}

	if contextFile != "" {
		b.WriteString("\n\nProject context:\n")
		b.WriteString(contextFile)
	}

	if planMode {
		b.WriteString("\n\n")
		b.WriteString(planModeAddendum)
	}

	return b.String()
}
