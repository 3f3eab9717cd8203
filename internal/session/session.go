// Package session keeps the in-process transcript with its cumulative
// metrics, compresses long histories, and persists sessions by id and
// optional name.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bluehawksai/bluehawks-cli/internal/llm"
)

const (
	// DefaultMaxMessages is the transcript high-water mark.
	DefaultMaxMessages = 100
	// keepRecent is how many trailing messages compression preserves.
	keepRecent = 20
	// topicHintLimit caps each topic fragment in the summary.
	topicHintLimit = 50
	// topicHintCount caps how many removed user messages feed the hint.
	topicHintCount = 5
)

// Metadata carries the session's cumulative counters.
type Metadata struct {
	ProjectPath         string         `json:"project_path"`
	Model               string         `json:"model"`
	TotalTokens         int            `json:"total_tokens"`
	ToolsUsed           []string       `json:"tools_used"`
	SuccessfulToolCalls int            `json:"successful_tool_calls"`
	FailedToolCalls     int            `json:"failed_tool_calls"`
	APITime             time.Duration  `json:"api_time"`
	ToolTime            time.Duration  `json:"tool_time"`
	ModelTokens         map[string]int `json:"model_tokens,omitempty"`
}

// Session owns its message list exclusively.
type Session struct {
	ID        string            `json:"id"`
	StartTime time.Time         `json:"start_time"`
	Messages  []llm.ChatMessage `json:"messages"`
	Metadata  Metadata          `json:"metadata"`

	maxMessages int
	mu          sync.Mutex
}

// New creates a session with a time-plus-entropy id.
func New(projectPath, model string) *Session {
	now := time.Now()
	return &Session{
		ID:        fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8]),
		StartTime: now,
		Metadata: Metadata{
			ProjectPath: projectPath,
			Model:       model,
			ModelTokens: make(map[string]int),
		},
		maxMessages: DefaultMaxMessages,
	}
}

// SetMaxMessages overrides the high-water mark.
func (s *Session) SetMaxMessages(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.maxMessages = n
	}
}

// AddMessage appends a message, compressing when the transcript passes
// the high-water mark.
func (s *Session) AddMessage(msg llm.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, msg)
	if s.maxMessages > 0 && len(s.Messages) > s.maxMessages {
		s.compressLocked()
	}
}

// MessageCount returns len(messages).
func (s *Session) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Messages)
}

// Snapshot returns a copy of the transcript.
func (s *Session) Snapshot() []llm.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.ChatMessage, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// RecordToolCall updates tool counters and the used-tool set.
func (s *Session) RecordToolCall(name string, ok bool, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.Metadata.SuccessfulToolCalls++
	} else {
		s.Metadata.FailedToolCalls++
	}
	s.Metadata.ToolTime += elapsed
	s.markToolUsedLocked(name)
}

// MarkToolUsed records set membership without touching the counters.
func (s *Session) MarkToolUsed(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markToolUsedLocked(name)
}

// AddToolCounts folds a finished turn's counters into the session.
func (s *Session) AddToolCounts(successful, failed int, toolTime time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Metadata.SuccessfulToolCalls += successful
	s.Metadata.FailedToolCalls += failed
	s.Metadata.ToolTime += toolTime
}

func (s *Session) markToolUsedLocked(name string) {
	for _, used := range s.Metadata.ToolsUsed {
		if used == name {
			return
		}
	}
	s.Metadata.ToolsUsed = append(s.Metadata.ToolsUsed, name)
}

// RecordUsage accumulates token usage for a model.
func (s *Session) RecordUsage(model string, usage llm.Usage, apiTime time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Metadata.TotalTokens += usage.TotalTokens
	s.Metadata.APITime += apiTime
	if s.Metadata.ModelTokens == nil {
		s.Metadata.ModelTokens = make(map[string]int)
	}
	if model != "" {
		s.Metadata.ModelTokens[model] += usage.TotalTokens
	}
}

// CompressHistory forces a compression pass.
func (s *Session) CompressHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compressLocked()
}

// compressLocked keeps the leading system message (when present) and
// the most recent messages, replacing everything in between with one
// assistant-role placeholder naming the removed count and a topic hint.
func (s *Session) compressLocked() {
	head := 0
	if len(s.Messages) > 0 && s.Messages[0].Role == llm.RoleSystem {
		head = 1
	}
	if len(s.Messages) <= head+keepRecent+1 {
		return
	}

	removed := s.Messages[head : len(s.Messages)-keepRecent]
	tail := s.Messages[len(s.Messages)-keepRecent:]

	var topics []string
	for _, m := range removed {
		if m.Role != llm.RoleUser {
			continue
		}
		hint := strings.TrimSpace(m.Content)
		if hint == "" {
			continue
		}
		if len(hint) > topicHintLimit {
			hint = hint[:topicHintLimit]
		}
		topics = append(topics, hint)
		if len(topics) >= topicHintCount {
			break
		}
	}

	summary := fmt.Sprintf("[Previous conversation compressed: %d messages removed.", len(removed))
	if len(topics) > 0 {
		summary += " Topics: " + strings.Join(topics, ", ")
	}
	summary += "]"

	compacted := make([]llm.ChatMessage, 0, head+1+len(tail))
	compacted = append(compacted, s.Messages[:head]...)
	compacted = append(compacted, llm.ChatMessage{Role: llm.RoleAssistant, Content: summary})
	compacted = append(compacted, tail...)
	s.Messages = compacted
}
