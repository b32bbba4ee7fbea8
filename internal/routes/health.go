package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Conversly/messenger-relay/internal/controllers"
)

// SetupHealthRoutes configures health check endpoints
func SetupHealthRoutes(router *gin.Engine, db controllers.Pinger, channels controllers.ChannelCache) {
	healthController := controllers.NewHealthController(db, channels)

	// Root endpoint
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	router.GET("/health", healthController.HealthCheck)
	router.GET("/health/live", healthController.Liveness)
	router.GET("/health/ready", healthController.Readiness)
}
