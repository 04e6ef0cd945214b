package router

import (
	"github.com/gin-gonic/gin"

	"taskpilot.app/server/internal/http/handler"
	"taskpilot.app/server/internal/http/middleware"
	"taskpilot.app/server/internal/service"
)

func SetupRoutes(router *gin.Engine, services *service.Services) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	requireAuth := middleware.RequireAuth(services.Auth())

	chatHandler := handler.NewChatHandler(services.Chat())
	router.POST("/chat", requireAuth, chatHandler.Chat)

	v1 := router.Group("/api/v1")
	v1.Use(requireAuth)
	{
		taskHandler := handler.NewTaskHandler(services.Tasks())
		TaskRouter(v1.Group("/tasks"), taskHandler)

		convHandler := handler.NewConversationHandler(services.Chat())
		ConversationRouter(v1.Group("/conversations"), convHandler)
	}
}
