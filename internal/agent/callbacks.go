package agent

// Callbacks is the narrow observer surface the renderer implements.
// Nil fields are tolerated everywhere; the core never inspects UI
// state. Callbacks may fire while the loop is suspended but must not
// re-enter Run.
type Callbacks struct {
	// OnChunk receives assistant text. Final-turn content arrives
	// word by word; intermediate-turn content arrives in one chunk
	// suffixed with a blank line.
	OnChunk func(text string)
	// OnToolStart fires before a tool dispatch with parsed arguments.
	OnToolStart func(name string, args map[string]any)
	// OnToolEnd fires after a dispatch with the result body, or
	// "Error" on failure.
	OnToolEnd func(name string, result string)
}

func (c Callbacks) chunk(text string) {
	if c.OnChunk != nil {
		c.OnChunk(text)
	}
}

func (c Callbacks) toolStart(name string, args map[string]any) {
	if c.OnToolStart != nil {
		c.OnToolStart(name, args)
	}
}

func (c Callbacks) toolEnd(name, result string) {
	if c.OnToolEnd != nil {
		c.OnToolEnd(name, result)
	}
}
