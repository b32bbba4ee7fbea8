package loaders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Conversly/messenger-relay/internal/core"
)

const conversationColumns = `id, tenant_id, channel_id, participant_id, platform, participant_name, last_message_text,
	last_message_at, last_sender_role, unread_count, online, status, created_at, updated_at`

func scanConversation(row pgx.Row) (*core.Conversation, error) {
	var conv core.Conversation
	var platform string
	var name, lastText, lastRole *string
	err := row.Scan(
		&conv.ID, &conv.TenantID, &conv.ChannelID, &conv.ParticipantID, &platform, &name, &lastText,
		&conv.LastMessageAt, &lastRole, &conv.UnreadCount, &conv.Online, &conv.Status, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	conv.Platform = core.Platform(platform)
	conv.ParticipantName = deref(name)
	conv.LastMessageText = deref(lastText)
	conv.LastSenderRole = core.SenderRole(deref(lastRole))
	return &conv, nil
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id.String(), nil
}

// ResolveOrCreate inserts the conversation unless (participant_id, channel_id) already exists,
// then reads back whichever row won.
func (c *PostgresClient) ResolveOrCreate(ctx context.Context, key core.ConversationKey, displayNameHint string) (string, bool, error) {
	id, err := newID()
	if err != nil {
		return "", false, err
	}

	const insert = `
		INSERT INTO conversations (id, tenant_id, channel_id, participant_id, platform, participant_name,
			unread_count, online, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), 0, TRUE, 'active', NOW(), NOW())
		ON CONFLICT (participant_id, channel_id) DO NOTHING
		RETURNING id`

	var created string
	err = c.pool.QueryRow(ctx, insert,
		id, key.TenantID, key.ChannelID, key.ParticipantID, string(key.Platform), displayNameHint).Scan(&created)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("failed to insert conversation: %w", err)
	}

	var existing string
	err = c.pool.QueryRow(ctx,
		`SELECT id FROM conversations WHERE participant_id = $1 AND channel_id = $2`,
		key.ParticipantID, key.ChannelID).Scan(&existing)
	if err != nil {
		return "", false, fmt.Errorf("failed to read conversation: %w", err)
	}
	return existing, false, nil
}

func unreadIncrement(role core.SenderRole) int {
	if role == core.RoleCustomer {
		return 1
	}
	return 0
}

// RecordActivity updates last-message fields; only customer messages raise unread_count.
func (c *PostgresClient) RecordActivity(ctx context.Context, conversationID, lastMessageText string, role core.SenderRole, at time.Time) error {
	tag, err := c.pool.Exec(ctx, `
		UPDATE conversations
		SET last_message_text = $2, last_message_at = $3, last_sender_role = $4,
			unread_count = unread_count + $5, updated_at = NOW()
		WHERE id = $1`,
		conversationID, lastMessageText, at, string(role), unreadIncrement(role))
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrConversationNotFound
	}
	return nil
}

// UpdateDisplayName writes only rows whose stored name differs.
func (c *PostgresClient) UpdateDisplayName(ctx context.Context, participantID, name string) (bool, error) {
	tag, err := c.pool.Exec(ctx, `
		UPDATE conversations SET participant_name = $2, updated_at = NOW()
		WHERE participant_id = $1 AND participant_name IS DISTINCT FROM $2`,
		participantID, name)
	if err != nil {
		return false, fmt.Errorf("failed to update display name: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkConversationRead resets unread_count and flags every message read in one transaction.
func (c *PostgresClient) MarkConversationRead(ctx context.Context, conversationID string) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE conversations SET unread_count = 0, updated_at = NOW() WHERE id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("failed to reset unread count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrConversationNotFound
	}

	if _, err := tx.Exec(ctx,
		`UPDATE messages SET is_read = TRUE WHERE conversation_id = $1 AND is_read = FALSE`, conversationID); err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit read marker: %w", err)
	}
	return nil
}

func (c *PostgresClient) GetConversation(ctx context.Context, conversationID string) (*core.Conversation, error) {
	conv, err := scanConversation(c.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, conversationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns conversations by most recent activity. Empty channelID lists all.
func (c *PostgresClient) ListConversations(ctx context.Context, channelID string, limit, offset int) ([]core.Conversation, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE ($1 = '' OR channel_id = $1)
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
		LIMIT $2 OFFSET $3`,
		channelID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []core.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}
