package session

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluehawksai/bluehawks-cli/internal/llm"
)

func TestNewSessionIDUnique(t *testing.T) {
	a := New("/p", "m")
	b := New("/p", "m")
	require.NotEqual(t, a.ID, b.ID)
	require.NotEmpty(t, a.ID)
}

func TestMessageCountMatchesMessages(t *testing.T) {
	s := New("/p", "m")
	s.AddMessage(llm.ChatMessage{Role: llm.RoleUser, Content: "hi"})
	s.AddMessage(llm.ChatMessage{Role: llm.RoleAssistant, Content: "hello"})
	require.Equal(t, 2, s.MessageCount())
	require.Len(t, s.Snapshot(), 2)
}

func TestCompressionKeepsSystemAndRecent(t *testing.T) {
	s := New("/p", "m")
	s.maxMessages = 0 // compress manually below

	s.AddMessage(llm.ChatMessage{Role: llm.RoleSystem, Content: "system prompt"})
	for i := 0; i < 150; i++ {
		s.AddMessage(llm.ChatMessage{Role: llm.RoleUser, Content: fmt.Sprintf("question %d", i)})
		s.AddMessage(llm.ChatMessage{Role: llm.RoleAssistant, Content: fmt.Sprintf("answer %d", i)})
	}
	original := s.Snapshot()

	s.CompressHistory()
	messages := s.Snapshot()

	require.Equal(t, llm.RoleSystem, messages[0].Role)
	require.Equal(t, llm.RoleAssistant, messages[1].Role)
	require.True(t, strings.HasPrefix(messages[1].Content, "[Previous conversation compressed:"))
	require.Contains(t, messages[1].Content, "question 0")

	require.Len(t, messages, 1+1+20)
	require.Equal(t, original[len(original)-20:], messages[2:])
}

func TestCompressionWithoutSystemMessage(t *testing.T) {
	s := New("/p", "m")
	s.maxMessages = 0
	for i := 0; i < 60; i++ {
		s.AddMessage(llm.ChatMessage{Role: llm.RoleUser, Content: fmt.Sprintf("u%d", i)})
	}

	s.CompressHistory()
	messages := s.Snapshot()
	require.Equal(t, llm.RoleAssistant, messages[0].Role)
	require.True(t, strings.HasPrefix(messages[0].Content, "[Previous conversation compressed:"))
	require.Len(t, messages, 1+20)
}

func TestCompressionTriggersAtHighWaterMark(t *testing.T) {
	s := New("/p", "m")
	s.SetMaxMessages(30)
	for i := 0; i < 40; i++ {
		s.AddMessage(llm.ChatMessage{Role: llm.RoleUser, Content: fmt.Sprintf("m%d", i)})
	}
	require.LessOrEqual(t, s.MessageCount(), 30)
}

func TestCompressionNoOpOnShortHistory(t *testing.T) {
	s := New("/p", "m")
	for i := 0; i < 10; i++ {
		s.AddMessage(llm.ChatMessage{Role: llm.RoleUser, Content: "x"})
	}
	s.CompressHistory()
	require.Equal(t, 10, s.MessageCount())
}

func TestTopicHintTruncation(t *testing.T) {
	s := New("/p", "m")
	s.maxMessages = 0
	long := strings.Repeat("a", 120)
	s.AddMessage(llm.ChatMessage{Role: llm.RoleUser, Content: long})
	for i := 0; i < 40; i++ {
		s.AddMessage(llm.ChatMessage{Role: llm.RoleAssistant, Content: "r"})
	}
	s.CompressHistory()

	summary := s.Snapshot()[0].Content
	require.Contains(t, summary, strings.Repeat("a", 50))
	require.NotContains(t, summary, strings.Repeat("a", 51))
}

func TestCounters(t *testing.T) {
	s := New("/p", "m")
	s.RecordToolCall("read_file", true, 10*time.Millisecond)
	s.RecordToolCall("read_file", true, 5*time.Millisecond)
	s.RecordToolCall("run_command", false, time.Millisecond)

	require.Equal(t, 2, s.Metadata.SuccessfulToolCalls)
	require.Equal(t, 1, s.Metadata.FailedToolCalls)
	require.Equal(t, []string{"read_file", "run_command"}, s.Metadata.ToolsUsed)
	require.Equal(t, 16*time.Millisecond, s.Metadata.ToolTime)

	s.RecordUsage("m", llm.Usage{TotalTokens: 100}, 30*time.Millisecond)
	s.RecordUsage("m", llm.Usage{TotalTokens: 50}, 20*time.Millisecond)
	require.Equal(t, 150, s.Metadata.TotalTokens)
	require.Equal(t, 150, s.Metadata.ModelTokens["m"])
	require.Equal(t, 50*time.Millisecond, s.Metadata.APITime)
}
