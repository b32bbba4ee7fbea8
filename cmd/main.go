package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Conversly/messenger-relay/internal/api/channels"
	"github.com/Conversly/messenger-relay/internal/api/channels/graph"
	"github.com/Conversly/messenger-relay/internal/api/channels/messenger"
	"github.com/Conversly/messenger-relay/internal/api/webhook"
	"github.com/Conversly/messenger-relay/internal/config"
	"github.com/Conversly/messenger-relay/internal/core"
	"github.com/Conversly/messenger-relay/internal/events"
	"github.com/Conversly/messenger-relay/internal/llm"
	"github.com/Conversly/messenger-relay/internal/loaders"
	"github.com/Conversly/messenger-relay/internal/routes"
	"github.com/Conversly/messenger-relay/internal/storage"
	"github.com/Conversly/messenger-relay/internal/utils"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		fmt.Println("Warning: Error loading .env file", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	cleanup := utils.InitLogger(cfg)
	defer cleanup()

	utils.Zlog.Info("Starting application",
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.ServerPort),
		zap.String("database_driver", cfg.Database.Driver))

	rootCtx, stopRoot := context.WithCancel(context.Background())
	defer stopRoot()

	store, err := loaders.NewStore(rootCtx, cfg.Database)
	if err != nil {
		utils.Zlog.Error("Failed to create database client", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			utils.Zlog.Error("Error closing database connection", zap.Error(err))
		}
	}()

	registry := core.NewChannelRegistry(store)
	registry.StartAutoRefresh(rootCtx, cfg.Pipeline.ChannelRefreshInterval)
	defer registry.StopAutoRefresh()

	publisher, err := events.NewPublisher(cfg.AMQP, cfg.ServiceName)
	if err != nil {
		utils.Zlog.Error("Failed to create event publisher", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			utils.Zlog.Error("Error closing event publisher", zap.Error(err))
		}
	}()

	mirror, err := storage.NewMediaMirror(cfg.S3)
	if err != nil {
		utils.Zlog.Error("Failed to create media mirror", zap.Error(err))
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: graph.DefaultTimeout}
	gateway := channels.NewMetaGateway(cfg.Meta, httpClient)
	stats := core.NewStats()

	engine := core.NewAutoReplyEngine(core.AutoReplyDeps{
		Messages:      store,
		Conversations: store,
		Provider:      llm.NewGeminiProvider(),
		Gateway:       gateway,
		Publisher:     publisher,
		Stats:         stats,
		Defaults: core.ReplyDefaults{
			Model:         cfg.AI.DefaultModel,
			Temperature:   cfg.AI.DefaultTemperature,
			MaxTokens:     cfg.AI.DefaultMaxTokens,
			HistoryWindow: cfg.AI.HistoryWindow,
			SystemPrompt:  cfg.AI.DefaultSystemPrompt,
			APIKeys:       cfg.GeminiAPIKeys(),
		},
	})

	deps := core.PipelineDeps{
		Registry:      registry,
		Conversations: store,
		Messages:      store,
		Gateway:       gateway,
		Engine:        engine,
		Publisher:     publisher,
		Stats:         stats,
	}
	if mirror != nil {
		deps.Mirror = mirror
	}
	pipeline := core.NewPipeline(deps)

	webhookCtrl := webhook.NewController(pipeline, cfg.Meta.VerifyToken, cfg.Meta.AppSecret, cfg.Pipeline.ProcessTimeout)
	if cfg.Meta.AppSecret == "" {
		utils.Zlog.Warn("META_APP_SECRET not set, webhook signatures are not verified")
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	routes.SetupRoutes(router, routes.Dependencies{
		Config:   cfg,
		Store:    store,
		Registry: registry,
		Pipeline: pipeline,
		Webhook:  webhookCtrl,
		RawSender: messenger.NewClient(
			graph.WithBaseURL(cfg.Meta.GraphBaseURL),
			graph.WithAPIVersion(cfg.Meta.GraphAPIVersion),
			graph.WithHTTPClient(httpClient),
		),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Pipeline.ProcessTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		utils.Zlog.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.Zlog.Error("Failed to start server", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.Zlog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		utils.Zlog.Error("Server forced to shutdown", zap.Error(err))
	}

	// Webhook batches run after the 200 is returned; let them finish before closing the store.
	if err := webhookCtrl.Wait(ctx); err != nil {
		utils.Zlog.Warn("Timed out waiting for webhook processing", zap.Error(err))
	}

	utils.Zlog.Info("Server exited")
}
