package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"taskpilot.app/server/internal/http/dto"
	"taskpilot.app/server/internal/http/middleware"
	"taskpilot.app/server/internal/service"
	"taskpilot.app/server/internal/store"
)

type ChatHandler struct {
	chatService service.ChatService
}

func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Chat handles one conversational turn. The whole turn either lands in
// the transcript or the request fails; there is no partial persistence
// to report.
func (h *ChatHandler) Chat(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.GetUser(ctx)

	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid chat request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svcReq := service.ChatRequest{
		UserID:  user.ID,
		Message: req.Message,
	}
	if req.ConversationID != nil {
		convID, err := strconv.ParseInt(*req.ConversationID, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation_id"})
			return
		}
		svcReq.ConversationID = &convID
	}

	resp, err := h.chatService.Chat(ctx, svcReq)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "conversation belongs to another user"})
		case errors.Is(err, service.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "conversation was modified concurrently, retry the request"})
		case errors.Is(err, service.ErrInvariantViolation):
			slog.ErrorContext(ctx, "conversation transcript corrupted", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "conversation history is corrupted"})
		default:
			slog.ErrorContext(ctx, "chat turn failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process message"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.ChatResponse{
		ConversationID: resp.ConversationID,
		Reply:          resp.Reply,
		Seq:            resp.Seq,
		ToolCalls:      resp.ToolCalls,
		Degraded:       resp.Degraded,
	})
}
