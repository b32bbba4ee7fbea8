package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/Conversly/messenger-relay/internal/core"
)

// RegisterRoutes registers the channel administration endpoints
func RegisterRoutes(router *gin.Engine, store core.ChannelStore, registry Invalidator) {
	ctrl := NewController(store, registry)

	channels := router.Group("/api/channels")
	{
		channels.GET("/:channelId", ctrl.Get)
		channels.PUT("/:channelId", ctrl.Upsert)
		channels.POST("/:channelId/activate", ctrl.Activate)
		channels.POST("/:channelId/deactivate", ctrl.Deactivate)
	}
}
