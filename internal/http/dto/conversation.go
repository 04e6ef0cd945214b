package dto

import (
	"encoding/json"
	"time"

	"taskpilot.app/server/internal/model"
)

type ConversationResponse struct {
	ID        int64     `json:"id,string"`
	Title     *string   `json:"title,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func ToConversationResponse(c *model.Conversation) *ConversationResponse {
	return &ConversationResponse{
		ID:        c.ID,
		Title:     c.Title,
		Active:    c.Active,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func ToConversationResponses(convs []model.Conversation) []ConversationResponse {
	out := make([]ConversationResponse, 0, len(convs))
	for i := range convs {
		out = append(out, *ToConversationResponse(&convs[i]))
	}
	return out
}

type MessageResponse struct {
	Seq        int64           `json:"seq"`
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolName   *string         `json:"tool_name,omitempty"`
	ToolArgs   json.RawMessage `json:"tool_args,omitempty"`
	ToolResult *string         `json:"tool_result,omitempty"`
	ToolFailed bool            `json:"tool_failed,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func ToMessageResponses(msgs []model.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageResponse{
			Seq:        m.Seq,
			Role:       string(m.Role),
			Content:    m.Content,
			ToolName:   m.ToolName,
			ToolArgs:   m.ToolArgs,
			ToolResult: m.ToolResult,
			ToolFailed: m.ToolFailed,
			CreatedAt:  m.CreatedAt,
		})
	}
	return out
}
