package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Conversly/messenger-relay/internal/config"
	"github.com/Conversly/messenger-relay/internal/controllers"
	"github.com/Conversly/messenger-relay/internal/core"
)

// SetupSystemRoutes configures the /api/v1 status and counter endpoints
func SetupSystemRoutes(router *gin.Engine, cfg *config.Config, stats *core.Stats) {
	systemController := controllers.NewSystemController(cfg, stats)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", systemController.Status)
		v1.GET("/info", systemController.Info)
		v1.GET("/stats", systemController.Stats)
		v1.POST("/stats/reset", systemController.ResetStats)
	}
}

// Setup404Handler configures the 404 handler
func Setup404Handler(router *gin.Engine) {
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "The requested resource was not found",
			"path":    c.Request.URL.Path,
		})
	})
}
