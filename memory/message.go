package memory

import (
	"errors"
	"fmt"
	"slices"
)

// Role tags the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

const (
	// DefaultConversationID is used when callers do not name a conversation.
	DefaultConversationID = "default"
	// DefaultMaxMessages bounds the stored messages of each conversation.
	DefaultMaxMessages = 21
	// DefaultBotName labels assistant and tool turns when no name is given.
	DefaultBotName = "Botto"
	// SystemName labels the synthesized system message.
	SystemName = "System"
)

// ErrInvalidMessage is returned when a message violates the role invariants.
var ErrInvalidMessage = errors.New("memory: invalid message")

// ToolCall is a pending tool invocation requested by the model.
// Arguments holds the JSON-encoded argument object exactly as the model sent it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// Message is one turn of a conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// Validate checks the per-role invariants:
//   - role is one of system, user, assistant, tool
//   - a tool message answers a call (ToolCallID set)
//   - only assistant messages carry tool calls
func (m Message) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, m.Role)
	}
	if m.Role == RoleTool && m.ToolCallID == "" {
		return fmt.Errorf("%w: tool message without tool_call_id", ErrInvalidMessage)
	}
	if m.Role != RoleAssistant && len(m.ToolCalls) > 0 {
		return fmt.Errorf("%w: %s message carries tool calls", ErrInvalidMessage, m.Role)
	}
	for _, tc := range m.ToolCalls {
		if tc.ID == "" || tc.Name == "" {
			return fmt.Errorf("%w: tool call missing id or name", ErrInvalidMessage)
		}
	}
	return nil
}

// HasToolCalls reports whether m is an assistant turn requesting tools.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

func (m Message) clone() Message {
	m.ToolCalls = slices.Clone(m.ToolCalls)
	return m
}

// UserMessage builds a user turn.
func UserMessage(content, name string) Message {
	return Message{Role: RoleUser, Content: content, Name: name}
}

// AssistantMessage builds an assistant text turn.
func AssistantMessage(content, name string) Message {
	return Message{Role: RoleAssistant, Content: content, Name: name}
}

// ToolCallMessage builds an assistant turn carrying tool calls and no text.
func ToolCallMessage(calls []ToolCall, name string) Message {
	return Message{Role: RoleAssistant, Name: name, ToolCalls: slices.Clone(calls)}
}

// ToolResultMessage builds the tool turn answering callID.
func ToolResultMessage(callID, content, name string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Content: content, Name: name}
}
