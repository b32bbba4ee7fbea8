package conversations

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Conversly/messenger-relay/internal/core"
	"github.com/Conversly/messenger-relay/internal/utils"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Store is the read side of conversations and messages used by the inbox API.
type Store interface {
	GetConversation(ctx context.Context, conversationID string) (*core.Conversation, error)
	ListConversations(ctx context.Context, channelID string, limit, offset int) ([]core.Conversation, error)
	MarkConversationRead(ctx context.Context, conversationID string) error
	ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]core.Message, error)
}

// Controller serves the inbox read API
type Controller struct {
	store Store
}

func NewController(store Store) *Controller {
	return &Controller{store: store}
}

// List returns conversations, most recent activity first
// GET /api/conversations?channelId=&limit=&offset=
func (c *Controller) List(ctx *gin.Context) {
	limit, offset, ok := paging(ctx)
	if !ok {
		return
	}

	convs, err := c.store.ListConversations(ctx.Request.Context(), ctx.Query("channelId"), limit, offset)
	if err != nil {
		internalError(ctx, "failed to list conversations", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"conversations": convs,
		"limit":         limit,
		"offset":        offset,
	})
}

// Get returns one conversation
// GET /api/conversations/:id
func (c *Controller) Get(ctx *gin.Context) {
	conv, err := c.store.GetConversation(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		internalError(ctx, "failed to get conversation", err)
		return
	}
	if conv == nil {
		notFound(ctx)
		return
	}
	ctx.JSON(http.StatusOK, conv)
}

// Messages returns a conversation's messages in chronological order
// GET /api/conversations/:id/messages?limit=&offset=
func (c *Controller) Messages(ctx *gin.Context) {
	limit, offset, ok := paging(ctx)
	if !ok {
		return
	}

	id := ctx.Param("id")
	conv, err := c.store.GetConversation(ctx.Request.Context(), id)
	if err != nil {
		internalError(ctx, "failed to get conversation", err)
		return
	}
	if conv == nil {
		notFound(ctx)
		return
	}

	msgs, err := c.store.ListByConversation(ctx.Request.Context(), id, limit, offset)
	if err != nil {
		internalError(ctx, "failed to list messages", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"conversationId": id,
		"messages":       msgs,
		"limit":          limit,
		"offset":         offset,
	})
}

// MarkRead resets the unread counter and flags the conversation's messages read
// POST /api/conversations/:id/read
func (c *Controller) MarkRead(ctx *gin.Context) {
	id := ctx.Param("id")
	err := c.store.MarkConversationRead(ctx.Request.Context(), id)
	if errors.Is(err, core.ErrConversationNotFound) {
		notFound(ctx)
		return
	}
	if err != nil {
		internalError(ctx, "failed to mark conversation read", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"conversationId": id, "unreadCount": 0})
}

func paging(ctx *gin.Context) (limit, offset int, ok bool) {
	limit, offset = defaultLimit, 0
	var err error
	if raw := ctx.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 {
			badRequest(ctx, "limit must be a positive integer")
			return 0, 0, false
		}
	}
	if raw := ctx.Query("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			badRequest(ctx, "offset must be a non-negative integer")
			return 0, 0, false
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, offset, true
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
		"message":   "conversation not found",
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
