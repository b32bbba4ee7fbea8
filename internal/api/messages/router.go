package messages

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the direct processing and send-proxy endpoints
func RegisterRoutes(router *gin.Engine, processor Processor, sender RawSender) {
	ctrl := NewController(NewService(processor), sender)

	api := router.Group("/api")
	{
		api.POST("/process-message", ctrl.ProcessMessage)
		api.POST("/facebook/send-message", ctrl.SendMessage)
	}
}
