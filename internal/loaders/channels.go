package loaders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Conversly/messenger-relay/internal/core"
)

const channelColumns = `channel_id, tenant_id, platform, name, access_token, active, webhook_enabled,
	auto_reply_enabled, system_prompt, ai_model, ai_temperature, ai_max_tokens, ai_api_key, created_at, updated_at`

func scanChannel(row pgx.Row) (*core.ChannelConfig, error) {
	var ch core.ChannelConfig
	var platform string
	var systemPrompt, aiModel, aiKey *string
	err := row.Scan(
		&ch.ChannelID, &ch.TenantID, &platform, &ch.Name, &ch.AccessToken, &ch.Active, &ch.WebhookEnabled,
		&ch.AutoReplyEnabled, &systemPrompt, &aiModel, &ch.AITemperature, &ch.AIMaxTokens, &aiKey,
		&ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ch.Platform = core.Platform(platform)
	ch.SystemPrompt = deref(systemPrompt)
	ch.AIModel = deref(aiModel)
	ch.AIAPIKey = deref(aiKey)
	return &ch, nil
}

// LoadChannels returns every linked channel.
func (c *PostgresClient) LoadChannels(ctx context.Context) ([]core.ChannelConfig, error) {
	rows, err := c.pool.Query(ctx, `SELECT `+channelColumns+` FROM channels`)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	var out []core.ChannelConfig
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		out = append(out, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate channels: %w", err)
	}
	return out, nil
}

// GetChannel returns (nil, nil) when the channel is not linked.
func (c *PostgresClient) GetChannel(ctx context.Context, channelID string) (*core.ChannelConfig, error) {
	ch, err := scanChannel(c.pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE channel_id = $1`, channelID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return ch, nil
}

// UpsertChannel links a channel or updates its settings.
func (c *PostgresClient) UpsertChannel(ctx context.Context, ch core.ChannelConfig) error {
	const query = `
		INSERT INTO channels (channel_id, tenant_id, platform, name, access_token, active, webhook_enabled,
			auto_reply_enabled, system_prompt, ai_model, ai_temperature, ai_max_tokens, ai_api_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12, NULLIF($13, ''), NOW(), NOW())
		ON CONFLICT (channel_id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			platform = EXCLUDED.platform,
			name = EXCLUDED.name,
			access_token = EXCLUDED.access_token,
			active = EXCLUDED.active,
			webhook_enabled = EXCLUDED.webhook_enabled,
			auto_reply_enabled = EXCLUDED.auto_reply_enabled,
			system_prompt = EXCLUDED.system_prompt,
			ai_model = EXCLUDED.ai_model,
			ai_temperature = EXCLUDED.ai_temperature,
			ai_max_tokens = EXCLUDED.ai_max_tokens,
			ai_api_key = EXCLUDED.ai_api_key,
			updated_at = NOW()`

	_, err := c.pool.Exec(ctx, query,
		ch.ChannelID, ch.TenantID, string(ch.Platform), ch.Name, ch.AccessToken, ch.Active, ch.WebhookEnabled,
		ch.AutoReplyEnabled, ch.SystemPrompt, ch.AIModel, ch.AITemperature, ch.AIMaxTokens, ch.AIAPIKey)
	if err != nil {
		return fmt.Errorf("failed to upsert channel: %w", err)
	}
	return nil
}

// SetChannelActive flips the tenant kill switch. Returns false when the channel does not exist.
func (c *PostgresClient) SetChannelActive(ctx context.Context, channelID string, active bool) (bool, error) {
	tag, err := c.pool.Exec(ctx,
		`UPDATE channels SET active = $2, updated_at = NOW() WHERE channel_id = $1`, channelID, active)
	if err != nil {
		return false, fmt.Errorf("failed to update channel: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
