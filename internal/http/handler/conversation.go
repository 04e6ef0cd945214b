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

type ConversationHandler struct {
	chatService service.ChatService
}

func NewConversationHandler(chatService service.ChatService) *ConversationHandler {
	return &ConversationHandler{chatService: chatService}
}

func (h *ConversationHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.GetUser(ctx)

	convs, err := h.chatService.ListConversations(ctx, user.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list conversations", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": dto.ToConversationResponses(convs)})
}

// Create starts a fresh thread. The caller's previous active
// conversation is deactivated in the same transaction.
func (h *ConversationHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.GetUser(ctx)

	conv, err := h.chatService.StartConversation(ctx, user.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to start conversation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start conversation"})
		return
	}

	c.JSON(http.StatusCreated, dto.ToConversationResponse(conv))
}

func (h *ConversationHandler) Messages(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.GetUser(ctx)

	convID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	msgs, err := h.chatService.GetMessages(ctx, user.ID, convID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "conversation belongs to another user"})
		default:
			slog.ErrorContext(ctx, "failed to load messages", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": dto.ToMessageResponses(msgs)})
}
