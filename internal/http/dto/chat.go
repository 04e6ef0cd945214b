package dto

// ChatRequest is the POST /chat body. ConversationID is optional; when
// omitted the turn goes to the caller's active conversation. IDs are
// decimal strings on the wire, matching response encoding.
type ChatRequest struct {
	Message        string  `json:"message" binding:"required,min=1,max=8000"`
	ConversationID *string `json:"conversation_id,omitempty" binding:"omitempty,number"`
}

type ChatResponse struct {
	ConversationID int64  `json:"conversation_id,string"`
	Reply          string `json:"reply"`
	Seq            int64  `json:"seq"`
	ToolCalls      int    `json:"tool_calls"`
	Degraded       bool   `json:"degraded,omitempty"`
}
