package webhook

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Conversly/messenger-relay/internal/core"
	"github.com/Conversly/messenger-relay/internal/utils"
)

// BatchProcessor runs normalized envelopes through the pipeline.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, envs []core.Envelope) core.BatchSummary
}

// Controller handles Meta webhook verification and event delivery
type Controller struct {
	processor      BatchProcessor
	verifyToken    string
	appSecret      string
	processTimeout time.Duration
	wg             sync.WaitGroup
}

func NewController(processor BatchProcessor, verifyToken, appSecret string, processTimeout time.Duration) *Controller {
	if processTimeout <= 0 {
		processTimeout = time.Minute
	}
	return &Controller{
		processor:      processor,
		verifyToken:    verifyToken,
		appSecret:      appSecret,
		processTimeout: processTimeout,
	}
}

// VerifyWebhook handles Meta's subscription handshake
// GET /webhook
func (c *Controller) VerifyWebhook(ctx *gin.Context) {
	mode, hasMode := ctx.GetQuery("hub.mode")
	token, hasToken := ctx.GetQuery("hub.verify_token")
	challenge, hasChallenge := ctx.GetQuery("hub.challenge")

	if !hasMode || !hasToken || !hasChallenge {
		ctx.String(http.StatusBadRequest, "missing verification parameters")
		return
	}

	if mode != "subscribe" || token != c.verifyToken {
		utils.Zlog.Warn("Webhook verification rejected", zap.String("mode", mode))
		ctx.String(http.StatusForbidden, "verification failed")
		return
	}

	utils.Zlog.Info("Webhook verified")
	ctx.String(http.StatusOK, challenge)
}

// Webhook acknowledges a delivery and processes its events in the background
// POST /webhook
func (c *Controller) Webhook(ctx *gin.Context) {
	body, err := ctx.GetRawData()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":     "invalid_payload",
			"message":   err.Error(),
			"timestamp": time.Now().UTC(),
		})
		return
	}

	if c.appSecret != "" {
		if err := VerifySignature(ctx.GetHeader(SignatureHeader), body, c.appSecret); err != nil {
			utils.Zlog.Warn("Rejected webhook with bad signature", zap.Error(err))
			ctx.JSON(http.StatusForbidden, gin.H{
				"error":     "invalid_signature",
				"message":   err.Error(),
				"timestamp": time.Now().UTC(),
			})
			return
		}
	}

	batch, err := ParseWebhook(body)
	if err != nil {
		utils.Zlog.Debug("Ignoring unrecognized webhook payload", zap.Int("bytes", len(body)))
		ctx.Status(http.StatusNotFound)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "received"})

	if len(batch.Envelopes) == 0 {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		processCtx, cancel := context.WithTimeout(context.Background(), c.processTimeout)
		defer cancel()

		started := time.Now()
		summary := c.processor.ProcessBatch(processCtx, batch.Envelopes)
		utils.Zlog.Info("Webhook batch processed",
			zap.String("platform", string(batch.Platform)),
			zap.Int("total", summary.Total),
			zap.Int("processed", summary.Processed),
			zap.Int("duplicates", summary.Duplicates),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", summary.Failed),
			zap.Int("replies", summary.Replies),
			zap.Int64("latency_ms", time.Since(started).Milliseconds()))
	}()
}

// Wait blocks until in-flight batches finish or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
