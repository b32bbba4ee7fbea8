package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/Conversly/messenger-relay/internal/api/admin"
	"github.com/Conversly/messenger-relay/internal/api/conversations"
	"github.com/Conversly/messenger-relay/internal/api/messages"
	"github.com/Conversly/messenger-relay/internal/api/webhook"
	"github.com/Conversly/messenger-relay/internal/config"
	"github.com/Conversly/messenger-relay/internal/core"
	"github.com/Conversly/messenger-relay/internal/middleware"
)

// Dependencies are the long-lived components built in main.
type Dependencies struct {
	Config    *config.Config
	Store     core.Store
	Registry  *core.ChannelRegistry
	Pipeline  *core.Pipeline
	Webhook   *webhook.Controller
	RawSender messages.RawSender
}

// SetupRoutes configures all application routes
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	// Apply global middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(deps.Config.Origins()))
	router.Use(middleware.RequestID())

	// Setup route groups
	SetupHealthRoutes(router, deps.Store, deps.Registry)
	SetupSystemRoutes(router, deps.Config, deps.Pipeline.Stats())
	webhook.RegisterRoutes(router, deps.Webhook)
	messages.RegisterRoutes(router, deps.Pipeline, deps.RawSender)
	conversations.RegisterRoutes(router, deps.Store)
	admin.RegisterRoutes(router, deps.Store, deps.Registry)
	Setup404Handler(router)
}
