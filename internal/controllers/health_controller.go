package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Conversly/messenger-relay/internal/utils"
)

// Pinger is satisfied by the conversation store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ChannelCache reports how many channels the registry holds.
type ChannelCache interface {
	Len() int
	LoadedAt() time.Time
}

type HealthController struct {
	db       Pinger
	channels ChannelCache
}

func NewHealthController(db Pinger, channels ChannelCache) *HealthController {
	return &HealthController{db: db, channels: channels}
}

// HealthCheck godoc
// @Summary Check application health
// @Description Check if the application and database are healthy
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthController) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		utils.Zlog.Error("Database health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"database":  "down",
			"timestamp": time.Now().UTC(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"database":  "up",
		"channels":  h.channels.Len(),
		"timestamp": time.Now().UTC(),
	})
}

// Liveness godoc
// @Summary Liveness probe
// @Description Check if the application is alive
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/live [get]
func (h *HealthController) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
	})
}

// Readiness godoc
// @Summary Readiness probe
// @Description Ready once the database answers and the channel registry has loaded at least once
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/ready [get]
func (h *HealthController) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		utils.Zlog.Error("Readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not ready",
			"database":  "down",
			"timestamp": time.Now().UTC(),
		})
		return
	}

	loadedAt := h.channels.LoadedAt()
	if loadedAt.IsZero() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not ready",
			"database":  "up",
			"channels":  "not loaded",
			"timestamp": time.Now().UTC(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "ready",
		"database":          "up",
		"channels":          h.channels.Len(),
		"channels_loadedAt": loadedAt,
		"timestamp":         time.Now().UTC(),
	})
}
