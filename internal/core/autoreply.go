package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/Conversly/messenger-relay/internal/llm"
	"github.com/Conversly/messenger-relay/internal/utils"
)

// ReplyDefaults fill in whatever a channel leaves unset.
type ReplyDefaults struct {
	Model         string
	Temperature   float32
	MaxTokens     int
	HistoryWindow int
	SystemPrompt  string
	APIKeys       []string
}

// AutoReplyEngine decides whether to answer a customer message with an AI reply and delivers it.
type AutoReplyEngine struct {
	messages      MessageStore
	conversations ConversationRepository
	provider      llm.Provider
	gateway       OutboundGateway
	publisher     EventPublisher
	stats         *Stats
	defaults      ReplyDefaults
}

// AutoReplyDeps holds dependencies needed by the engine. Publisher may be nil.
type AutoReplyDeps struct {
	Messages      MessageStore
	Conversations ConversationRepository
	Provider      llm.Provider
	Gateway       OutboundGateway
	Publisher     EventPublisher
	Stats         *Stats
	Defaults      ReplyDefaults
}

func NewAutoReplyEngine(deps AutoReplyDeps) *AutoReplyEngine {
	stats := deps.Stats
	if stats == nil {
		stats = NewStats()
	}
	return &AutoReplyEngine{
		messages:      deps.Messages,
		conversations: deps.Conversations,
		provider:      deps.Provider,
		gateway:       deps.Gateway,
		publisher:     deps.Publisher,
		stats:         stats,
		defaults:      deps.Defaults,
	}
}

// Eligible reports whether env may trigger an AI reply on ch.
func Eligible(ch *ChannelConfig, env Envelope) bool {
	if ch == nil || !ch.AutoReplyEnabled {
		return false
	}
	if env.IsEcho || env.SenderRole != RoleCustomer {
		return false
	}
	return strings.TrimSpace(env.Text) != ""
}

// Reply runs the auto-reply state machine for one stored inbound message and reports
// whether a reply was actually delivered. It never returns an error; failures are logged
// and counted.
func (e *AutoReplyEngine) Reply(ctx context.Context, ch *ChannelConfig, conversationID, inboundMessageID string, env Envelope) bool {
	if !Eligible(ch, env) {
		return false
	}

	log := utils.Zlog.With(
		zap.String("channel_id", ch.ChannelID),
		zap.String("conversation_id", conversationID),
		zap.String("platform", string(ch.Platform)))

	cfg := e.modelConfig(ch)
	history := e.buildHistory(ctx, ch, conversationID, inboundMessageID, env.Text)

	reply, err := e.provider.Generate(ctx, history, cfg)
	if err != nil {
		e.stats.IncAIFailure()
		log.Warn("AI generation failed", zap.String("model", cfg.Model), zap.Error(err))
		return false
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		log.Debug("AI returned empty reply")
		return false
	}

	// Recorded before delivery; a failed send leaves the row in place.
	outboundID, err := e.messages.InsertOutbound(ctx, conversationID, reply, "", RoleBusiness)
	if err != nil {
		log.Error("Failed to store outbound reply", zap.Error(err))
		return false
	}
	now := time.Now().UTC()
	if err := e.conversations.RecordActivity(ctx, conversationID, reply, RoleBusiness, now); err != nil {
		log.Warn("Failed to record outbound activity", zap.Error(err))
	}

	platformID, err := e.gateway.Send(ctx, ch, OutboundMessage{RecipientID: env.SenderID, Text: reply})
	if err != nil {
		e.stats.IncSendFailure()
		fields := []zap.Field{zap.String("message_id", outboundID), zap.Error(err)}
		var body interface{ ResponseBody() string }
		if errors.As(err, &body) {
			fields = append(fields, zap.String("provider_body", body.ResponseBody()))
		}
		log.Error("Failed to deliver auto-reply", fields...)
		return false
	}

	if platformID != "" {
		if err := e.messages.SetPlatformMessageID(ctx, outboundID, platformID); err != nil {
			log.Warn("Failed to back-fill platform message id",
				zap.String("message_id", outboundID),
				zap.String("platform_message_id", platformID),
				zap.Error(err))
		}
	}

	e.stats.IncAutoReplySent()
	log.Info("Auto-reply sent",
		zap.String("message_id", outboundID),
		zap.String("platform_message_id", platformID))

	if e.publisher != nil {
		evt := MessageEvent{
			Direction:      DirectionOutbound,
			TenantID:       ch.TenantID,
			ChannelID:      ch.ChannelID,
			Platform:       ch.Platform,
			ConversationID: conversationID,
			MessageID:      outboundID,
			ParticipantID:  env.SenderID,
			SenderRole:     RoleBusiness,
			Text:           reply,
			At:             now,
		}
		if err := e.publisher.PublishMessage(ctx, evt); err != nil {
			log.Warn("Failed to publish outbound event", zap.Error(err))
		}
	}

	return true
}

func (e *AutoReplyEngine) modelConfig(ch *ChannelConfig) llm.ModelConfig {
	cfg := llm.ModelConfig{
		Model:       e.defaults.Model,
		Temperature: e.defaults.Temperature,
		MaxTokens:   e.defaults.MaxTokens,
		APIKeys:     e.defaults.APIKeys,
	}
	if ch.AIModel != "" {
		cfg.Model = ch.AIModel
	}
	if ch.AITemperature != nil {
		cfg.Temperature = *ch.AITemperature
	}
	if ch.AIMaxTokens != nil && *ch.AIMaxTokens > 0 {
		cfg.MaxTokens = *ch.AIMaxTokens
	}
	if ch.AIAPIKey != "" {
		cfg.APIKeys = []string{ch.AIAPIKey}
	}
	return cfg
}

// buildHistory returns system prompt, the bounded window of earlier messages, then the
// triggering text. History read failures degrade to no history.
func (e *AutoReplyEngine) buildHistory(ctx context.Context, ch *ChannelConfig, conversationID, inboundMessageID, text string) []*schema.Message {
	prompt := ch.SystemPrompt
	if prompt == "" {
		prompt = e.defaults.SystemPrompt
	}

	var messages []*schema.Message
	if prompt != "" {
		messages = append(messages, schema.SystemMessage(prompt))
	}

	if window := e.defaults.HistoryWindow; window > 0 {
		recent, err := e.messages.RecentMessages(ctx, conversationID, window+1)
		if err != nil {
			utils.Zlog.Debug("Failed to load conversation history",
				zap.String("conversation_id", conversationID),
				zap.Error(err))
			recent = nil
		}

		var prior []Message
		for _, m := range recent {
			if m.ID == inboundMessageID {
				continue
			}
			prior = append(prior, m)
		}
		if len(prior) > window {
			prior = prior[len(prior)-window:]
		}

		for _, m := range prior {
			content := m.Content
			if content == "" {
				continue
			}
			switch m.SenderRole {
			case RoleCustomer:
				messages = append(messages, schema.UserMessage(content))
			case RoleBusiness:
				messages = append(messages, schema.AssistantMessage(content, nil))
			}
		}
	}

	return append(messages, schema.UserMessage(text))
}
