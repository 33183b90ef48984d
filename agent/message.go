package agent

import (
	"slices"

	"github.com/skosovsky/fnagent"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the conversation history. Assistant messages carry
// either Content or ToolCalls; tool messages carry the originating call id and
// function name.
type Message struct {
	Role       Role               `json:"role"`
	Content    string             `json:"content,omitempty"`
	ToolCalls  []fnagent.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
	Name       string             `json:"name,omitempty"`
}

func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

func AssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// ToolCallsMessage is an assistant message requesting the given calls.
func ToolCallsMessage(calls ...fnagent.ToolCall) Message {
	return Message{Role: RoleAssistant, ToolCalls: calls}
}

// ToolMessage renders a tool result, success or failure, as a history entry.
func ToolMessage(res fnagent.ToolResult) Message {
	return Message{
		Role:       RoleTool,
		Content:    res.Content(),
		ToolCallID: res.CallID,
		Name:       res.Name,
	}
}

// HasToolCalls reports whether the message requests function calls.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// cloneMessages copies msgs deeply enough that appending to or editing the
// copy never touches the original.
func cloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		m.ToolCalls = slices.Clone(m.ToolCalls)
		out[i] = m
	}
	return out
}
