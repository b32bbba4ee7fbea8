package core

import (
	"errors"
	"time"
)

// Platform identifies the messaging network a channel lives on
type Platform string

const (
	PlatformMessenger Platform = "messenger"
	PlatformWhatsApp  Platform = "whatsapp"
)

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	return p == PlatformMessenger || p == PlatformWhatsApp
}

// SenderRole is who authored a message within a conversation
type SenderRole string

const (
	RoleCustomer SenderRole = "customer"
	RoleBusiness SenderRole = "business"
	RoleSystem   SenderRole = "system"
)

// Valid reports whether r is a known role.
func (r SenderRole) Valid() bool {
	switch r {
	case RoleCustomer, RoleBusiness, RoleSystem:
		return true
	}
	return false
}

// AttachmentPlaceholder is stored as the last-message preview for media-only messages.
const AttachmentPlaceholder = "[attachment]"

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrChannelNotFound      = errors.New("channel not found")
	ErrUnsupportedPlatform  = errors.New("unsupported platform")
)

// Envelope is the platform-agnostic form of one inbound message event.
// SenderID is always the customer, also for echoes of business messages.
type Envelope struct {
	Platform          Platform
	ChannelID         string
	SenderID          string
	Text              string
	PlatformMessageID string
	Timestamp         time.Time
	MediaURL          string
	MediaID           string // WhatsApp media handle, resolved to MediaURL by the pipeline
	SenderRole        SenderRole
	IsEcho            bool
	DisplayName       string
}

// Preview is the text recorded as the conversation's last message.
func (e Envelope) Preview() string {
	if e.Text != "" {
		return e.Text
	}
	if e.MediaURL != "" || e.MediaID != "" {
		return AttachmentPlaceholder
	}
	return ""
}

// ChannelConfig is a business endpoint (Facebook Page or WhatsApp number) and its tenant settings.
type ChannelConfig struct {
	ChannelID        string    `json:"channelId"`
	TenantID         string    `json:"tenantId"`
	Platform         Platform  `json:"platform"`
	Name             string    `json:"name"`
	AccessToken      string    `json:"-"`
	Active           bool      `json:"active"`
	WebhookEnabled   bool      `json:"webhookEnabled"`
	AutoReplyEnabled bool      `json:"autoReplyEnabled"`
	SystemPrompt     string    `json:"systemPrompt,omitempty"`
	AIModel          string    `json:"aiModel,omitempty"`
	AITemperature    *float32  `json:"aiTemperature,omitempty"`
	AIMaxTokens      *int      `json:"aiMaxTokens,omitempty"`
	AIAPIKey         string    `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// AcceptsEvents is the tenant kill switch: inactive or webhook-disabled channels drop all events.
func (c *ChannelConfig) AcceptsEvents() bool {
	return c != nil && c.Active && c.WebhookEnabled
}

type Conversation struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenantId"`
	ChannelID       string     `json:"channelId"`
	ParticipantID   string     `json:"participantId"`
	Platform        Platform   `json:"platform"`
	ParticipantName string     `json:"participantName,omitempty"`
	LastMessageText string     `json:"lastMessageText,omitempty"`
	LastMessageAt   *time.Time `json:"lastMessageAt,omitempty"`
	LastSenderRole  SenderRole `json:"lastSenderRole,omitempty"`
	UnreadCount     int        `json:"unreadCount"`
	Online          bool       `json:"online"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

const (
	ConversationStatusActive   = "active"
	ConversationStatusPending  = "pending"
	ConversationStatusResolved = "resolved"
)

// ConversationKey identifies a conversation by its natural key.
type ConversationKey struct {
	TenantID      string
	ParticipantID string
	ChannelID     string
	Platform      Platform
}

type Message struct {
	ID                string     `json:"id"`
	ConversationID    string     `json:"conversationId"`
	PlatformMessageID string     `json:"platformMessageId,omitempty"`
	SenderRole        SenderRole `json:"senderRole"`
	Content           string     `json:"content"`
	MediaURL          string     `json:"mediaUrl,omitempty"`
	IsRead            bool       `json:"isRead"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// InboundMessage is the write model for InsertInbound. Preview becomes the conversation's
// last-message text; Text is used when it is empty.
type InboundMessage struct {
	ConversationID    string
	Text              string
	Preview           string
	PlatformMessageID string
	MediaURL          string
	SenderRole        SenderRole
	Timestamp         time.Time
}

func (m InboundMessage) LastMessageText() string {
	if m.Preview != "" {
		return m.Preview
	}
	return m.Text
}

// InsertStatus distinguishes a fresh insert from an idempotent redelivery.
type InsertStatus int

const (
	Inserted InsertStatus = iota
	AlreadyExists
)

func (s InsertStatus) String() string {
	if s == AlreadyExists {
		return "already_exists"
	}
	return "inserted"
}

// InsertResult is returned by InsertInbound. MessageID is empty for AlreadyExists.
type InsertResult struct {
	MessageID string
	Status    InsertStatus
}

// OutboundMessage is what the gateway delivers to a platform. Exactly one of Text or MediaURL is used;
// MediaURL wins when both are set.
type OutboundMessage struct {
	RecipientID string
	Text        string
	MediaURL    string
}

// MessageEvent is published after a message is stored.
type MessageEvent struct {
	Direction      string     `json:"direction"` // inbound | outbound
	TenantID       string     `json:"tenantId"`
	ChannelID      string     `json:"channelId"`
	Platform       Platform   `json:"platform"`
	ConversationID string     `json:"conversationId"`
	MessageID      string     `json:"messageId"`
	ParticipantID  string     `json:"participantId"`
	SenderRole     SenderRole `json:"senderRole"`
	Text           string     `json:"text,omitempty"`
	MediaURL       string     `json:"mediaUrl,omitempty"`
	At             time.Time  `json:"at"`
}

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// OutcomeStatus is the terminal state of one envelope in the pipeline.
type OutcomeStatus string

const (
	OutcomeProcessed OutcomeStatus = "processed"
	OutcomeDuplicate OutcomeStatus = "duplicate"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "failed"
)

type Outcome struct {
	Status         OutcomeStatus
	ConversationID string
	MessageID      string
	AutoReplySent  bool
	Reason         string
}

// BatchSummary aggregates outcomes for one webhook delivery.
type BatchSummary struct {
	Total      int
	Processed  int
	Duplicates int
	Skipped    int
	Failed     int
	Replies    int
}
