package conversations

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the inbox read endpoints
func RegisterRoutes(router *gin.Engine, store Store) {
	ctrl := NewController(store)

	convs := router.Group("/api/conversations")
	{
		convs.GET("", ctrl.List)
		convs.GET("/:id", ctrl.Get)
		convs.GET("/:id/messages", ctrl.Messages)
		convs.POST("/:id/read", ctrl.MarkRead)
	}
}
