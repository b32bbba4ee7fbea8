package loaders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/Conversly/messenger-relay/internal/core"
	"github.com/Conversly/messenger-relay/internal/utils"
)

type channelRow struct {
	ChannelID        string `gorm:"primaryKey"`
	TenantID         string `gorm:"index;not null"`
	Platform         string `gorm:"not null"`
	Name             string
	AccessToken      string
	Active           bool
	WebhookEnabled   bool
	AutoReplyEnabled bool
	SystemPrompt     *string
	AIModel          *string  `gorm:"column:ai_model"`
	AITemperature    *float32 `gorm:"column:ai_temperature"`
	AIMaxTokens      *int     `gorm:"column:ai_max_tokens"`
	AIAPIKey         *string  `gorm:"column:ai_api_key"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (channelRow) TableName() string { return "channels" }

type conversationRow struct {
	ID              string `gorm:"primaryKey"`
	TenantID        string `gorm:"index;not null"`
	ChannelID       string `gorm:"not null;uniqueIndex:uq_conversations_participant_channel,priority:2"`
	ParticipantID   string `gorm:"not null;uniqueIndex:uq_conversations_participant_channel,priority:1"`
	Platform        string `gorm:"not null"`
	ParticipantName *string
	LastMessageText *string
	LastMessageAt   *time.Time
	LastSenderRole  *string
	UnreadCount     int `gorm:"not null"`
	Online          bool
	Status          string `gorm:"not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (conversationRow) TableName() string { return "conversations" }

type messageRow struct {
	ID                string  `gorm:"primaryKey"`
	ConversationID    string  `gorm:"not null;index:idx_messages_conversation_created,priority:1;uniqueIndex:uq_messages_conversation_platform,priority:1"`
	PlatformMessageID *string `gorm:"uniqueIndex:uq_messages_conversation_platform,priority:2"`
	SenderRole        string  `gorm:"not null"`
	Content           string
	MediaURL          *string
	IsRead            bool
	CreatedAt         time.Time `gorm:"index:idx_messages_conversation_created,priority:2"`
}

func (messageRow) TableName() string { return "messages" }

// SQLiteClient is the embedded store used for single-node deployments and tests.
// It honours the same uniqueness rules as the Postgres schema.
type SQLiteClient struct {
	db *gorm.DB
}

func NewSQLiteClient(path string) (*SQLiteClient, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	// SQLite allows one writer at a time
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&channelRow{}, &conversationRow{}, &messageRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}

	utils.Zlog.Info("SQLite store ready", zap.String("path", path))
	return &SQLiteClient{db: db}, nil
}

func (c *SQLiteClient) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *SQLiteClient) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r channelRow) toCore() core.ChannelConfig {
	return core.ChannelConfig{
		ChannelID:        r.ChannelID,
		TenantID:         r.TenantID,
		Platform:         core.Platform(r.Platform),
		Name:             r.Name,
		AccessToken:      r.AccessToken,
		Active:           r.Active,
		WebhookEnabled:   r.WebhookEnabled,
		AutoReplyEnabled: r.AutoReplyEnabled,
		SystemPrompt:     deref(r.SystemPrompt),
		AIModel:          deref(r.AIModel),
		AITemperature:    r.AITemperature,
		AIMaxTokens:      r.AIMaxTokens,
		AIAPIKey:         deref(r.AIAPIKey),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func (r conversationRow) toCore() core.Conversation {
	return core.Conversation{
		ID:              r.ID,
		TenantID:        r.TenantID,
		ChannelID:       r.ChannelID,
		ParticipantID:   r.ParticipantID,
		Platform:        core.Platform(r.Platform),
		ParticipantName: deref(r.ParticipantName),
		LastMessageText: deref(r.LastMessageText),
		LastMessageAt:   r.LastMessageAt,
		LastSenderRole:  core.SenderRole(deref(r.LastSenderRole)),
		UnreadCount:     r.UnreadCount,
		Online:          r.Online,
		Status:          r.Status,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (r messageRow) toCore() core.Message {
	return core.Message{
		ID:                r.ID,
		ConversationID:    r.ConversationID,
		PlatformMessageID: deref(r.PlatformMessageID),
		SenderRole:        core.SenderRole(r.SenderRole),
		Content:           r.Content,
		MediaURL:          deref(r.MediaURL),
		IsRead:            r.IsRead,
		CreatedAt:         r.CreatedAt,
	}
}

func (c *SQLiteClient) LoadChannels(ctx context.Context) ([]core.ChannelConfig, error) {
	var rows []channelRow
	if err := c.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	out := make([]core.ChannelConfig, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

func (c *SQLiteClient) GetChannel(ctx context.Context, channelID string) (*core.ChannelConfig, error) {
	var row channelRow
	err := c.db.WithContext(ctx).First(&row, "channel_id = ?", channelID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	ch := row.toCore()
	return &ch, nil
}

func (c *SQLiteClient) UpsertChannel(ctx context.Context, ch core.ChannelConfig) error {
	row := channelRow{
		ChannelID:        ch.ChannelID,
		TenantID:         ch.TenantID,
		Platform:         string(ch.Platform),
		Name:             ch.Name,
		AccessToken:      ch.AccessToken,
		Active:           ch.Active,
		WebhookEnabled:   ch.WebhookEnabled,
		AutoReplyEnabled: ch.AutoReplyEnabled,
		SystemPrompt:     optional(ch.SystemPrompt),
		AIModel:          optional(ch.AIModel),
		AITemperature:    ch.AITemperature,
		AIMaxTokens:      ch.AIMaxTokens,
		AIAPIKey:         optional(ch.AIAPIKey),
	}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"tenant_id", "platform", "name", "access_token", "active", "webhook_enabled", "auto_reply_enabled",
			"system_prompt", "ai_model", "ai_temperature", "ai_max_tokens", "ai_api_key", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert channel: %w", err)
	}
	return nil
}

func (c *SQLiteClient) SetChannelActive(ctx context.Context, channelID string, active bool) (bool, error) {
	res := c.db.WithContext(ctx).Model(&channelRow{}).
		Where("channel_id = ?", channelID).
		Updates(map[string]any{"active": active, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("failed to update channel: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (c *SQLiteClient) ResolveOrCreate(ctx context.Context, key core.ConversationKey, displayNameHint string) (string, bool, error) {
	id, err := newID()
	if err != nil {
		return "", false, err
	}

	row := conversationRow{
		ID:              id,
		TenantID:        key.TenantID,
		ChannelID:       key.ChannelID,
		ParticipantID:   key.ParticipantID,
		Platform:        string(key.Platform),
		ParticipantName: optional(displayNameHint),
		Online:          true,
		Status:          core.ConversationStatusActive,
	}
	res := c.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return "", false, fmt.Errorf("failed to insert conversation: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return id, true, nil
	}

	var existing conversationRow
	err = c.db.WithContext(ctx).Select("id").
		Where("participant_id = ? AND channel_id = ?", key.ParticipantID, key.ChannelID).
		First(&existing).Error
	if err != nil {
		return "", false, fmt.Errorf("failed to read conversation: %w", err)
	}
	return existing.ID, false, nil
}

func (c *SQLiteClient) RecordActivity(ctx context.Context, conversationID, lastMessageText string, role core.SenderRole, at time.Time) error {
	return recordActivity(c.db.WithContext(ctx), conversationID, lastMessageText, role, at)
}

func recordActivity(db *gorm.DB, conversationID, lastMessageText string, role core.SenderRole, at time.Time) error {
	res := db.Model(&conversationRow{}).
		Where("id = ?", conversationID).
		Updates(map[string]any{
			"last_message_text": lastMessageText,
			"last_message_at":   at,
			"last_sender_role":  string(role),
			"unread_count":      gorm.Expr("unread_count + ?", unreadIncrement(role)),
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to record activity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return core.ErrConversationNotFound
	}
	return nil
}

func (c *SQLiteClient) UpdateDisplayName(ctx context.Context, participantID, name string) (bool, error) {
	res := c.db.WithContext(ctx).Model(&conversationRow{}).
		Where("participant_id = ? AND (participant_name IS NULL OR participant_name <> ?)", participantID, name).
		Updates(map[string]any{"participant_name": name, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("failed to update display name: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (c *SQLiteClient) MarkConversationRead(ctx context.Context, conversationID string) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&conversationRow{}).
			Where("id = ?", conversationID).
			Updates(map[string]any{"unread_count": 0, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return fmt.Errorf("failed to reset unread count: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return core.ErrConversationNotFound
		}
		if err := tx.Model(&messageRow{}).
			Where("conversation_id = ? AND is_read = ?", conversationID, false).
			Update("is_read", true).Error; err != nil {
			return fmt.Errorf("failed to mark messages read: %w", err)
		}
		return nil
	})
}

func (c *SQLiteClient) GetConversation(ctx context.Context, conversationID string) (*core.Conversation, error) {
	var row conversationRow
	err := c.db.WithContext(ctx).First(&row, "id = ?", conversationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	conv := row.toCore()
	return &conv, nil
}

func (c *SQLiteClient) ListConversations(ctx context.Context, channelID string, limit, offset int) ([]core.Conversation, error) {
	q := c.db.WithContext(ctx).Model(&conversationRow{})
	if channelID != "" {
		q = q.Where("channel_id = ?", channelID)
	}
	var rows []conversationRow
	err := q.Order("last_message_at IS NULL, last_message_at DESC, created_at DESC").
		Limit(limit).Offset(offset).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	out := make([]core.Conversation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

func (c *SQLiteClient) InsertInbound(ctx context.Context, in core.InboundMessage) (core.InsertResult, error) {
	id, err := newID()
	if err != nil {
		return core.InsertResult{}, err
	}
	at := in.Timestamp.UTC()
	if in.Timestamp.IsZero() {
		at = time.Now().UTC()
	}

	row := messageRow{
		ID:                id,
		ConversationID:    in.ConversationID,
		PlatformMessageID: optional(in.PlatformMessageID),
		SenderRole:        string(in.SenderRole),
		Content:           in.Text,
		MediaURL:          optional(in.MediaURL),
		IsRead:            in.SenderRole != core.RoleCustomer,
		CreatedAt:         at,
	}
	result := core.InsertResult{Status: core.AlreadyExists}
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return fmt.Errorf("failed to insert message: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := recordActivity(tx, in.ConversationID, in.LastMessageText(), in.SenderRole, at); err != nil {
			return err
		}
		result = core.InsertResult{MessageID: id, Status: core.Inserted}
		return nil
	})
	if err != nil {
		return core.InsertResult{}, err
	}
	return result, nil
}

func (c *SQLiteClient) InsertOutbound(ctx context.Context, conversationID, text, mediaURL string, role core.SenderRole) (string, error) {
	id, err := newID()
	if err != nil {
		return "", err
	}
	if role == "" {
		role = core.RoleBusiness
	}
	row := messageRow{
		ID:             id,
		ConversationID: conversationID,
		SenderRole:     string(role),
		Content:        text,
		MediaURL:       optional(mediaURL),
		IsRead:         true,
		CreatedAt:      time.Now().UTC(),
	}
	if err := c.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to insert outbound message: %w", err)
	}
	return id, nil
}

func (c *SQLiteClient) SetPlatformMessageID(ctx context.Context, messageID, platformMessageID string) error {
	err := c.db.WithContext(ctx).Exec(`
		UPDATE messages SET platform_message_id = ?
		WHERE id = ? AND platform_message_id IS NULL
		AND NOT EXISTS (
			SELECT 1 FROM messages other
			WHERE other.conversation_id = messages.conversation_id AND other.platform_message_id = ?
		)`, platformMessageID, messageID, platformMessageID).Error
	if err != nil {
		return fmt.Errorf("failed to set platform message id: %w", err)
	}
	return nil
}

func (c *SQLiteClient) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]core.Message, error) {
	var rows []messageRow
	err := c.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	out := make([]core.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

func (c *SQLiteClient) RecentMessages(ctx context.Context, conversationID string, limit int) ([]core.Message, error) {
	var rows []messageRow
	err := c.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	out := make([]core.Message, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = r.toCore()
	}
	return out, nil
}
