package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/Conversly/messenger-relay/internal/utils"
)

// PipelineDeps holds dependencies needed to build a Pipeline. Mirror and Publisher are optional.
type PipelineDeps struct {
	Registry      *ChannelRegistry
	Conversations ConversationRepository
	Messages      MessageStore
	Gateway       OutboundGateway
	Engine        *AutoReplyEngine
	Mirror        MediaMirror
	Publisher     EventPublisher
	Stats         *Stats
}

// Pipeline takes a normalized envelope through kill switch, persistence and auto-reply.
type Pipeline struct {
	registry      *ChannelRegistry
	conversations ConversationRepository
	messages      MessageStore
	gateway       OutboundGateway
	engine        *AutoReplyEngine
	mirror        MediaMirror
	publisher     EventPublisher
	stats         *Stats
}

func NewPipeline(deps PipelineDeps) *Pipeline {
	stats := deps.Stats
	if stats == nil {
		stats = NewStats()
	}
	return &Pipeline{
		registry:      deps.Registry,
		conversations: deps.Conversations,
		messages:      deps.Messages,
		gateway:       deps.Gateway,
		engine:        deps.Engine,
		mirror:        deps.Mirror,
		publisher:     deps.Publisher,
		stats:         stats,
	}
}

func (p *Pipeline) Stats() *Stats { return p.stats }

// Process handles one envelope. Duplicates and kill-switched channels are successful
// outcomes; only storage failures return an error.
func (p *Pipeline) Process(ctx context.Context, env Envelope) (Outcome, error) {
	p.stats.IncReceived()

	log := utils.Zlog.With(
		zap.String("channel_id", env.ChannelID),
		zap.String("participant_id", env.SenderID),
		zap.String("platform_message_id", env.PlatformMessageID),
		zap.Bool("is_echo", env.IsEcho))

	ch, err := p.registry.Lookup(ctx, env.ChannelID)
	if err != nil {
		p.stats.IncFailed()
		return Outcome{Status: OutcomeFailed, Reason: "channel_lookup"}, err
	}
	if !ch.AcceptsEvents() {
		p.stats.IncSkipped()
		reason := "channel_not_found"
		if ch != nil {
			reason = "channel_disabled"
		}
		log.Debug("Skipping event for unavailable channel", zap.String("reason", reason))
		return Outcome{Status: OutcomeSkipped, Reason: reason}, nil
	}
	if env.Platform == "" {
		env.Platform = ch.Platform
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	if env.SenderRole == "" {
		env.SenderRole = RoleCustomer
		if env.IsEcho {
			env.SenderRole = RoleBusiness
		}
	}

	env.MediaURL = p.resolveMedia(ctx, ch, env, log)

	convID, created, err := p.conversations.ResolveOrCreate(ctx, ConversationKey{
		TenantID:      ch.TenantID,
		ParticipantID: env.SenderID,
		ChannelID:     ch.ChannelID,
		Platform:      ch.Platform,
	}, env.DisplayName)
	if err != nil {
		p.stats.IncFailed()
		return Outcome{Status: OutcomeFailed, Reason: "resolve_conversation"}, fmt.Errorf("failed to resolve conversation: %w", err)
	}
	log = log.With(zap.String("conversation_id", convID))

	res, err := p.messages.InsertInbound(ctx, InboundMessage{
		ConversationID:    convID,
		Text:              env.Text,
		Preview:           env.Preview(),
		PlatformMessageID: env.PlatformMessageID,
		MediaURL:          env.MediaURL,
		SenderRole:        env.SenderRole,
		Timestamp:         env.Timestamp,
	})
	if err != nil {
		p.stats.IncFailed()
		return Outcome{Status: OutcomeFailed, ConversationID: convID, Reason: "insert_message"}, fmt.Errorf("failed to insert message: %w", err)
	}
	if res.Status == AlreadyExists {
		p.stats.IncDuplicate()
		log.Debug("Duplicate delivery ignored")
		return Outcome{Status: OutcomeDuplicate, ConversationID: convID}, nil
	}

	p.refreshDisplayName(ctx, ch, env, created, log)

	if p.publisher != nil {
		evt := MessageEvent{
			Direction:      DirectionInbound,
			TenantID:       ch.TenantID,
			ChannelID:      ch.ChannelID,
			Platform:       ch.Platform,
			ConversationID: convID,
			MessageID:      res.MessageID,
			ParticipantID:  env.SenderID,
			SenderRole:     env.SenderRole,
			Text:           env.Text,
			MediaURL:       env.MediaURL,
			At:             env.Timestamp,
		}
		if err := p.publisher.PublishMessage(ctx, evt); err != nil {
			log.Warn("Failed to publish inbound event", zap.Error(err))
		}
	}

	replied := false
	if p.engine != nil {
		replied = p.engine.Reply(ctx, ch, convID, res.MessageID, env)
	}
	p.stats.IncProcessed()

	log.Info("Message processed",
		zap.String("message_id", res.MessageID),
		zap.String("sender_role", string(env.SenderRole)),
		zap.Bool("auto_reply_sent", replied))

	return Outcome{
		Status:         OutcomeProcessed,
		ConversationID: convID,
		MessageID:      res.MessageID,
		AutoReplySent:  replied,
	}, nil
}

// ProcessBatch runs envelopes in order. A failure or panic in one envelope is logged and
// counted; later envelopes still run.
func (p *Pipeline) ProcessBatch(ctx context.Context, envs []Envelope) BatchSummary {
	summary := BatchSummary{Total: len(envs)}
	for _, env := range envs {
		out, err := p.processSafely(ctx, env)
		if err != nil {
			utils.Zlog.Error("Failed to process event",
				zap.String("channel_id", env.ChannelID),
				zap.String("participant_id", env.SenderID),
				zap.String("platform_message_id", env.PlatformMessageID),
				zap.Error(err))
		}
		switch out.Status {
		case OutcomeProcessed:
			summary.Processed++
		case OutcomeDuplicate:
			summary.Duplicates++
		case OutcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
		if out.AutoReplySent {
			summary.Replies++
		}
	}
	return summary
}

func (p *Pipeline) processSafely(ctx context.Context, env Envelope) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.stats.IncFailed()
			utils.Zlog.Error("Recovered panic while processing event",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			out = Outcome{Status: OutcomeFailed, Reason: "panic"}
			err = fmt.Errorf("panic processing event: %v", r)
		}
	}()
	return p.Process(ctx, env)
}

// resolveMedia turns a WhatsApp media handle into a URL and optionally mirrors the file.
// Any failure keeps whatever URL is already known.
func (p *Pipeline) resolveMedia(ctx context.Context, ch *ChannelConfig, env Envelope, log *zap.Logger) string {
	mediaURL := env.MediaURL
	if mediaURL == "" && env.MediaID != "" && p.gateway != nil {
		resolved, err := p.gateway.ResolveMediaURL(ctx, ch, env.MediaID)
		if err != nil {
			log.Warn("Failed to resolve media URL", zap.String("media_id", env.MediaID), zap.Error(err))
		} else {
			mediaURL = resolved
		}
	}
	if mediaURL == "" || p.mirror == nil {
		return mediaURL
	}

	token := ""
	if ch.Platform == PlatformWhatsApp {
		token = ch.AccessToken
	}
	mirrored, err := p.mirror.Mirror(ctx, mediaURL, token)
	if err != nil {
		log.Warn("Failed to mirror media", zap.Error(err))
		return mediaURL
	}
	return mirrored
}

// refreshDisplayName is best-effort: platform-supplied names win, otherwise a new
// Messenger conversation asks the profile API.
func (p *Pipeline) refreshDisplayName(ctx context.Context, ch *ChannelConfig, env Envelope, created bool, log *zap.Logger) {
	name := env.DisplayName
	if name == "" {
		if !created || ch.Platform != PlatformMessenger || p.gateway == nil {
			return
		}
		looked, err := p.gateway.LookupDisplayName(ctx, ch, env.SenderID)
		if err != nil {
			log.Debug("Profile lookup failed", zap.Error(err))
			return
		}
		name = looked
	}
	if name == "" {
		return
	}
	if _, err := p.conversations.UpdateDisplayName(ctx, env.SenderID, name); err != nil {
		log.Debug("Failed to update display name", zap.Error(err))
	}
}
