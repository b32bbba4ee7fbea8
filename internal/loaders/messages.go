package loaders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Conversly/messenger-relay/internal/core"
)

const messageColumns = `id, conversation_id, platform_message_id, sender_role, content, media_url, is_read, created_at`

func scanMessage(row pgx.Row) (*core.Message, error) {
	var msg core.Message
	var platformID, mediaURL *string
	var role string
	if err := row.Scan(&msg.ID, &msg.ConversationID, &platformID, &role, &msg.Content, &mediaURL, &msg.IsRead, &msg.CreatedAt); err != nil {
		return nil, err
	}
	msg.PlatformMessageID = deref(platformID)
	msg.MediaURL = deref(mediaURL)
	msg.SenderRole = core.SenderRole(role)
	return &msg, nil
}

// InsertInbound stores a platform message and records it on the conversation in one
// transaction. A second insert of the same (conversation_id, platform_message_id)
// returns AlreadyExists and changes nothing.
func (c *PostgresClient) InsertInbound(ctx context.Context, in core.InboundMessage) (core.InsertResult, error) {
	id, err := newID()
	if err != nil {
		return core.InsertResult{}, err
	}
	at := in.Timestamp.UTC()
	if in.Timestamp.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return core.InsertResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var inserted string
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, platform_message_id, sender_role, content, media_url, is_read, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7, $8)
		ON CONFLICT (conversation_id, platform_message_id) DO NOTHING
		RETURNING id`,
		id, in.ConversationID, in.PlatformMessageID, string(in.SenderRole), in.Text, in.MediaURL,
		in.SenderRole != core.RoleCustomer, at).Scan(&inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.InsertResult{Status: core.AlreadyExists}, nil
	}
	if err != nil {
		return core.InsertResult{}, fmt.Errorf("failed to insert message: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE conversations
		SET last_message_text = $2, last_message_at = $3, last_sender_role = $4,
			unread_count = unread_count + $5, updated_at = NOW()
		WHERE id = $1`,
		in.ConversationID, in.LastMessageText(), at, string(in.SenderRole), unreadIncrement(in.SenderRole))
	if err != nil {
		return core.InsertResult{}, fmt.Errorf("failed to record activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.InsertResult{}, core.ErrConversationNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return core.InsertResult{}, fmt.Errorf("failed to commit message: %w", err)
	}
	return core.InsertResult{MessageID: inserted, Status: core.Inserted}, nil
}

// InsertOutbound stores a reply before delivery; its platform id is back-filled later.
func (c *PostgresClient) InsertOutbound(ctx context.Context, conversationID, text, mediaURL string, role core.SenderRole) (string, error) {
	id, err := newID()
	if err != nil {
		return "", err
	}
	if role == "" {
		role = core.RoleBusiness
	}

	_, err = c.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, platform_message_id, sender_role, content, media_url, is_read, created_at)
		VALUES ($1, $2, NULL, $3, $4, NULLIF($5, ''), TRUE, NOW())`,
		id, conversationID, string(role), text, mediaURL)
	if err != nil {
		return "", fmt.Errorf("failed to insert outbound message: %w", err)
	}
	return id, nil
}

// SetPlatformMessageID is a no-op when the id is already set or an echo already claimed it.
func (c *PostgresClient) SetPlatformMessageID(ctx context.Context, messageID, platformMessageID string) error {
	_, err := c.pool.Exec(ctx, `
		UPDATE messages SET platform_message_id = $2
		WHERE id = $1 AND platform_message_id IS NULL
		AND NOT EXISTS (
			SELECT 1 FROM messages other
			WHERE other.conversation_id = messages.conversation_id AND other.platform_message_id = $2
		)`,
		messageID, platformMessageID)
	if err != nil {
		return fmt.Errorf("failed to set platform message id: %w", err)
	}
	return nil
}

// ListByConversation pages through a conversation oldest first.
func (c *PostgresClient) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]core.Message, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3`,
		conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return collectMessages(rows)
}

// RecentMessages returns the last limit messages in chronological order.
func (c *PostgresClient) RecentMessages(ctx context.Context, conversationID string, limit int) ([]core.Message, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func collectMessages(rows pgx.Rows) ([]core.Message, error) {
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return out, nil
}
