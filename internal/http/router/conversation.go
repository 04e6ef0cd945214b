package router

import (
	"github.com/gin-gonic/gin"

	"taskpilot.app/server/internal/http/handler"
)

func ConversationRouter(rg *gin.RouterGroup, h *handler.ConversationHandler) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id/messages", h.Messages)
}
