package messages

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Conversly/messenger-relay/internal/utils"
)

// RawSender forwards a prebuilt Messenger message object.
type RawSender interface {
	SendRaw(ctx context.Context, accessToken, recipientID string, message json.RawMessage) (int, []byte, error)
}

// Controller handles the direct message-processing and send-proxy endpoints
type Controller struct {
	service *Service
	sender  RawSender
}

func NewController(service *Service, sender RawSender) *Controller {
	return &Controller{service: service, sender: sender}
}

// ProcessMessage runs one message through the pipeline synchronously
// POST /api/process-message
func (c *Controller) ProcessMessage(ctx *gin.Context) {
	var req ProcessMessageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Zlog.Warn("invalid /api/process-message payload", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, ProcessMessageResponse{Message: err.Error()})
		return
	}

	resp, err := c.service.Process(ctx.Request.Context(), &req)
	if errors.Is(err, ErrInvalidRequest) {
		ctx.JSON(http.StatusBadRequest, ProcessMessageResponse{Message: err.Error()})
		return
	}
	if err != nil {
		utils.Zlog.Error("direct message processing failed",
			zap.String("page_id", req.PageID),
			zap.String("sender_id", req.SenderID),
			zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, ProcessMessageResponse{Message: err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, resp)
}

// SendMessage proxies a message to the Messenger Send API so browser clients avoid CORS
// POST /api/facebook/send-message
func (c *Controller) SendMessage(ctx *gin.Context) {
	var req SendMessageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err.Error())
		return
	}
	if req.AccessToken == "" || req.RecipientID == "" || len(req.Message) == 0 || string(req.Message) == "null" {
		badRequest(ctx, "access_token, recipient_id and message are required")
		return
	}

	status, body, err := c.sender.SendRaw(ctx.Request.Context(), req.AccessToken, req.RecipientID, req.Message)
	if err != nil {
		utils.Zlog.Error("send-message proxy failed",
			zap.String("recipient_id", req.RecipientID),
			zap.Error(err))
		ctx.JSON(http.StatusBadGateway, gin.H{
			"error":     "upstream_error",
			"message":   err.Error(),
			"timestamp": time.Now().UTC(),
		})
		return
	}

	if status >= 300 {
		utils.Zlog.Warn("Messenger rejected proxied message",
			zap.String("recipient_id", req.RecipientID),
			zap.Int("status", status),
			zap.ByteString("provider_body", body))
	}
	ctx.Data(status, "application/json; charset=utf-8", body)
}

func badRequest(ctx *gin.Context, msg string) {
	ctx.JSON(http.StatusBadRequest, gin.H{
		"error":     "bad_request",
		"message":   msg,
		"timestamp": time.Now().UTC(),
	})
}
