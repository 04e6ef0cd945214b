package model

import (
	"encoding/json"
	"time"
)

// MessageRole identifies who produced an entry in a conversation
// transcript.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

// Message is one entry in a conversation transcript. Seq is assigned
// by the store and is strictly increasing within a conversation; it is
// the authoritative ordering, not CreatedAt.
//
// Tool messages record a tool invocation: ToolName and ToolArgs hold
// what was called, ToolResult holds the observation returned to the
// model, and ToolFailed marks observations that describe a failure.
type Message struct {
	ID             int64           `json:"id"`
	ConversationID int64           `json:"conversation_id"`
	Seq            int64           `json:"seq"`
	Role           MessageRole     `json:"role"`
	Content        string          `json:"content"`
	ToolName       *string         `json:"tool_name,omitempty"`
	ToolArgs       json.RawMessage `json:"tool_args,omitempty"`
	ToolResult     *string         `json:"tool_result,omitempty"`
	ToolFailed     bool            `json:"tool_failed,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (m Message) IsToolCall() bool {
	return m.Role == MessageRoleTool
}
