package webhook

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Conversly/messenger-relay/internal/utils"
)

// RegisterRoutes registers the Meta webhook endpoints
func RegisterRoutes(router *gin.Engine, ctrl *Controller) {
	// Meta sends GET for verification, POST for events
	router.GET("/webhook", ctrl.VerifyWebhook)
	router.POST("/webhook", ctrl.Webhook)

	utils.Zlog.Info("Webhook routes registered",
		zap.String("verify_endpoint", "/webhook [GET]"),
		zap.String("event_endpoint", "/webhook [POST]"))
}
