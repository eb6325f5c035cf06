package orchestration

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the bot control API with the router
func RegisterRoutes(router *gin.Engine, controller BotController) {
	api := router.Group("/api")

	handler := NewBotHandler(controller)
	handler.RegisterRoutes(api)
}
