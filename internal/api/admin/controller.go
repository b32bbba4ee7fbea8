package admin

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Conversly/messenger-relay/internal/core"
	"github.com/Conversly/messenger-relay/internal/utils"
)

// Invalidator drops a cached channel so the next lookup reads the store.
type Invalidator interface {
	Invalidate(channelID string)
}

// Controller administers channels: linking, updating and the tenant kill switch
type Controller struct {
	store    core.ChannelStore
	registry Invalidator
}

func NewController(store core.ChannelStore, registry Invalidator) *Controller {
	return &Controller{store: store, registry: registry}
}

// Get returns one channel without its secrets
// GET /api/channels/:channelId
func (c *Controller) Get(ctx *gin.Context) {
	ch, err := c.store.GetChannel(ctx.Request.Context(), ctx.Param("channelId"))
	if err != nil {
		internalError(ctx, "failed to get channel", err)
		return
	}
	if ch == nil {
		notFound(ctx)
		return
	}
	ctx.JSON(http.StatusOK, ch)
}

// Upsert links a page or phone number, or updates its settings
// PUT /api/channels/:channelId
func (c *Controller) Upsert(ctx *gin.Context) {
	channelID := ctx.Param("channelId")

	var req UpsertChannelRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err.Error())
		return
	}
	platform := core.Platform(strings.ToLower(req.Platform))
	if !platform.Valid() {
		badRequest(ctx, "platform must be messenger or whatsapp")
		return
	}

	ch := core.ChannelConfig{
		ChannelID:        channelID,
		TenantID:         req.TenantID,
		Platform:         platform,
		Name:             req.Name,
		AccessToken:      req.AccessToken,
		Active:           boolOr(req.Active, true),
		WebhookEnabled:   boolOr(req.WebhookEnabled, true),
		AutoReplyEnabled: boolOr(req.AutoReplyEnabled, false),
		SystemPrompt:     req.SystemPrompt,
		AIModel:          req.AIModel,
		AITemperature:    req.AITemperature,
		AIMaxTokens:      req.AIMaxTokens,
		AIAPIKey:         req.AIAPIKey,
	}
	if err := c.store.UpsertChannel(ctx.Request.Context(), ch); err != nil {
		internalError(ctx, "failed to save channel", err)
		return
	}
	c.registry.Invalidate(channelID)

	utils.Zlog.Info("Channel saved",
		zap.String("channel_id", channelID),
		zap.String("tenant_id", ch.TenantID),
		zap.String("platform", string(platform)),
		zap.Bool("active", ch.Active),
		zap.Bool("auto_reply_enabled", ch.AutoReplyEnabled))

	saved, err := c.store.GetChannel(ctx.Request.Context(), channelID)
	if err != nil || saved == nil {
		ctx.JSON(http.StatusOK, ch)
		return
	}
	ctx.JSON(http.StatusOK, saved)
}

// Activate turns a channel back on
// POST /api/channels/:channelId/activate
func (c *Controller) Activate(ctx *gin.Context) {
	c.setActive(ctx, true)
}

// Deactivate is the tenant kill switch: events for the channel are dropped until reactivated
// POST /api/channels/:channelId/deactivate
func (c *Controller) Deactivate(ctx *gin.Context) {
	c.setActive(ctx, false)
}

func (c *Controller) setActive(ctx *gin.Context, active bool) {
	channelID := ctx.Param("channelId")

	updated, err := c.store.SetChannelActive(ctx.Request.Context(), channelID, active)
	if err != nil {
		internalError(ctx, "failed to update channel", err)
		return
	}
	if !updated {
		notFound(ctx)
		return
	}
	c.registry.Invalidate(channelID)

	utils.Zlog.Info("Channel activation changed",
		zap.String("channel_id", channelID),
		zap.Bool("active", active))

	ctx.JSON(http.StatusOK, gin.H{"channelId": channelID, "active": active})
}

func badRequest(ctx *gin.Context, msg string) {
	ctx.JSON(http.StatusBadRequest, gin.H{
		"error":     "bad_request",
		"message":   msg,
		"timestamp": time.Now().UTC(),
	})
}

func notFound(ctx *gin.Context) {
	ctx.JSON(http.StatusNotFound, gin.H{
		"error":     "not_found",
		"message":   "channel not found",
		"timestamp": time.Now().UTC(),
	})
}

func internalError(ctx *gin.Context, msg string, err error) {
	utils.Zlog.Error(msg, zap.String("path", ctx.Request.URL.Path), zap.Error(err))
	ctx.JSON(http.StatusInternalServerError, gin.H{
		"error":     "internal_error",
		"message":   msg,
		"timestamp": time.Now().UTC(),
	})
}

var _ Invalidator = (*core.ChannelRegistry)(nil)
