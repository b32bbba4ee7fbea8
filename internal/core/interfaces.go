package core

import (
	"context"
	"time"
)

// ConversationRepository finds, creates and updates conversations.
// Lookups that match nothing return (nil, nil).
type ConversationRepository interface {
	// ResolveOrCreate relies on the storage unique key (participant_id, channel_id);
	// created is true only for the caller whose insert won.
	ResolveOrCreate(ctx context.Context, key ConversationKey, displayNameHint string) (id string, created bool, err error)
	RecordActivity(ctx context.Context, conversationID, lastMessageText string, role SenderRole, at time.Time) error
	UpdateDisplayName(ctx context.Context, participantID, name string) (bool, error)
	MarkConversationRead(ctx context.Context, conversationID string) error
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
	ListConversations(ctx context.Context, channelID string, limit, offset int) ([]Conversation, error)
}

// MessageStore persists messages. A duplicate (conversation, platform message id) is a
// normal AlreadyExists result, never an error.
type MessageStore interface {
	// InsertInbound stores msg and records it on the conversation (last message, unread for
	// customers) atomically. On error nothing is written, so a redelivery can finish the work.
	InsertInbound(ctx context.Context, msg InboundMessage) (InsertResult, error)
	InsertOutbound(ctx context.Context, conversationID, text, mediaURL string, role SenderRole) (string, error)
	SetPlatformMessageID(ctx context.Context, messageID, platformMessageID string) error
	ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]Message, error)
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
}

// ChannelStore reads and administers channel rows.
type ChannelStore interface {
	LoadChannels(ctx context.Context) ([]ChannelConfig, error)
	GetChannel(ctx context.Context, channelID string) (*ChannelConfig, error)
	UpsertChannel(ctx context.Context, ch ChannelConfig) error
	SetChannelActive(ctx context.Context, channelID string, active bool) (bool, error)
}

// Store is the full persistence surface implemented by the Postgres and SQLite clients.
type Store interface {
	ConversationRepository
	MessageStore
	ChannelStore
	Ping(ctx context.Context) error
	Close() error
}

// OutboundGateway talks to the platform APIs on behalf of a channel.
type OutboundGateway interface {
	// Send delivers msg and returns the platform's message id. Exactly one attempt.
	Send(ctx context.Context, ch *ChannelConfig, msg OutboundMessage) (string, error)
	ResolveMediaURL(ctx context.Context, ch *ChannelConfig, mediaID string) (string, error)
	LookupDisplayName(ctx context.Context, ch *ChannelConfig, participantID string) (string, error)
}

// EventPublisher announces stored messages to downstream consumers.
type EventPublisher interface {
	PublishMessage(ctx context.Context, evt MessageEvent) error
}

// MediaMirror copies an attachment to durable storage and returns its new URL.
type MediaMirror interface {
	Mirror(ctx context.Context, sourceURL, bearerToken string) (string, error)
}
