package agent

import (
	"fmt"

	"taskpilot.app/server/common/llm"
	"taskpilot.app/server/internal/model"
)

// BuildTranscript converts stored messages into the LLM message shape.
// Tool records expand into an assistant tool-call message followed by
// its observation, so the model sees past turns exactly as it produced
// them. Call IDs are synthesized from the sequence number since
// provider-issued IDs are not persisted.
func BuildTranscript(msgs []model.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))

	for _, m := range msgs {
		switch m.Role {
		case model.MessageRoleUser:
			out = append(out, llm.Message{Role: "user", Content: m.Content})

		case model.MessageRoleAssistant:
			out = append(out, llm.Message{Role: "assistant", Content: m.Content})

		case model.MessageRoleTool:
			callID := fmt.Sprintf("call_%d", m.Seq)
			name := ""
			if m.ToolName != nil {
				name = *m.ToolName
			}
			observation := ""
			if m.ToolResult != nil {
				observation = *m.ToolResult
			}

			out = append(out, llm.Message{
				Role: "assistant",
				ToolCalls: []llm.ToolCall{{
					ID:        callID,
					Name:      name,
					Arguments: string(m.ToolArgs),
				}},
			})
			out = append(out, llm.Message{
				Role:       "tool",
				Content:    observation,
				ToolCallID: callID,
			})
		}
	}

	return out
}
