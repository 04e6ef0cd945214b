package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, so business context (conversation_id, user_id)
// shows up on every log statement without being threaded by hand.
type LogFields struct {
	ConversationID *int64  // Conversation the current turn belongs to
	UserID         *int64  // Authenticated user driving the request
	TurnSeq        *int64  // Sequence number of the user message that opened the turn
	ToolName       *string // Tool being executed
	Component      string  // Component name (e.g., "taskpilot.agent.loop")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.ConversationID != nil {
		result.ConversationID = next.ConversationID
	}
	if next.UserID != nil {
		result.UserID = next.UserID
	}
	if next.TurnSeq != nil {
		result.TurnSeq = next.TurnSeq
	}
	if next.ToolName != nil {
		result.ToolName = next.ToolName
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{UserID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen runes, appending "..." if truncated.
// Useful for logging potentially long strings like user utterances.
// Cutting on rune boundaries keeps multi-byte input valid UTF-8.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
