package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	toolCallRe = regexp.MustCompile(`(?s)<tool_call>(.*?)</tool_call>`)
	thinkRe    = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

// StripThink removes <think>…</think> spans from model output.
func StripThink(content string) string {
	if !strings.Contains(content, "<think>") {
		return content
	}
	return strings.TrimSpace(thinkRe.ReplaceAllString(content, ""))
}

func looksLikeTextualToolCall(content string) bool {
	return strings.Contains(content, "<tool_call>") || strings.Contains(content, `"name"`)
}

// textualCall accepts both {name|function, arguments|parameters} forms.
type textualCall struct {
	Name       string          `json:"name"`
	Function   string          `json:"function"`
	Arguments  json.RawMessage `json:"arguments"`
	Parameters json.RawMessage `json:"parameters"`
}

func (t textualCall) toolName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Function
}

func (t textualCall) args() json.RawMessage {
	if len(t.Arguments) > 0 {
		return t.Arguments
	}
	if len(t.Parameters) > 0 {
		return t.Parameters
	}
	return json.RawMessage(`{}`)
}

// ExtractToolCalls parses tool invocations some providers emit as text
// instead of structured tool_calls. Every <tool_call>…</tool_call>
// region is removed from the returned content. When no markup is
// present, a content body that is itself a top-level JSON array of
// {name, arguments} objects is accepted as a fallback; the gate on a
// leading "[" keeps arrays inside prose from triggering it.
func ExtractToolCalls(content string) (string, []ToolCall) {
	var calls []ToolCall
	now := time.Now().UnixMilli()

	matches := toolCallRe.FindAllStringSubmatch(content, -1)
	for i, m := range matches {
		var tc textualCall
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &tc); err != nil {
			continue
		}
		if tc.toolName() == "" {
			continue
		}
		calls = append(calls, ToolCall{
			ID:   fmt.Sprintf("call_%d_%d", now, i),
			Type: "function",
			Function: ToolFunctionCall{
				Name:      tc.toolName(),
				Arguments: tc.args(),
			},
		})
	}

	if len(matches) > 0 {
		content = strings.TrimSpace(toolCallRe.ReplaceAllString(content, ""))
		return content, calls
	}

	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "[") && strings.Contains(trimmed, `"name"`) {
		var raw []textualCall
		if err := json.Unmarshal([]byte(trimmed), &raw); err == nil && len(raw) > 0 && raw[0].toolName() != "" {
			for i, tc := range raw {
				if tc.toolName() == "" {
					continue
				}
				calls = append(calls, ToolCall{
					ID:   fmt.Sprintf("call_%d_%d", now, i),
					Type: "function",
					Function: ToolFunctionCall{
						Name:      tc.toolName(),
						Arguments: tc.args(),
					},
				})
			}
			return "", calls
		}
	}

	return content, calls
}

// RenderToolCall formats a ToolCall in the textual markup form. It is
// the inverse of ExtractToolCalls for JSON-serializable arguments.
func RenderToolCall(tc ToolCall) string {
	payload, _ := json.Marshal(map[string]json.RawMessage{
		"name":      json.RawMessage(fmt.Sprintf("%q", tc.Function.Name)),
		"arguments": tc.Function.Arguments,
	})
	return "<tool_call>" + string(payload) + "</tool_call>"
}
