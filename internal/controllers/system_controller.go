package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Conversly/messenger-relay/internal/config"
	"github.com/Conversly/messenger-relay/internal/core"
)

const version = "1.0.0"

type SystemController struct {
	cfg   *config.Config
	stats *core.Stats
}

func NewSystemController(cfg *config.Config, stats *core.Stats) *SystemController {
	return &SystemController{cfg: cfg, stats: stats}
}

// Status godoc
// @Summary Get system status
// @Description Get current system status information
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/status [get]
func (s *SystemController) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":     s.cfg.ServiceName,
		"version":     version,
		"environment": s.cfg.Environment,
		"hostname":    s.cfg.Hostname,
		"timestamp":   time.Now().UTC(),
	})
}

// Info godoc
// @Summary Get system information
// @Description Get detailed system information
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/info [get]
func (s *SystemController) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":           s.cfg.ServiceName,
		"version":           version,
		"environment":       s.cfg.Environment,
		"hostname":          s.cfg.Hostname,
		"debug":             s.cfg.Debug,
		"log_level":         s.cfg.LogLevel,
		"database_driver":   s.cfg.Database.Driver,
		"graph_api_version": s.cfg.Meta.GraphAPIVersion,
		"signature_check":   s.cfg.Meta.AppSecret != "",
		"event_publishing":  s.cfg.AMQP.URL != "",
		"media_mirroring":   s.cfg.S3.Enabled(),
		"timestamp":         time.Now().UTC(),
	})
}

// Stats godoc
// @Summary Get pipeline counters
// @Description Counts of received, processed, skipped and failed events since the last reset
// @Tags system
// @Produce json
// @Success 200 {object} core.StatsSnapshot
// @Router /api/v1/stats [get]
func (s *SystemController) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.stats.Snapshot())
}

// ResetStats godoc
// @Summary Reset pipeline counters
// @Tags system
// @Produce json
// @Success 200 {object} core.StatsSnapshot
// @Router /api/v1/stats/reset [post]
func (s *SystemController) ResetStats(c *gin.Context) {
	s.stats.Reset()
	c.JSON(http.StatusOK, s.stats.Snapshot())
}
