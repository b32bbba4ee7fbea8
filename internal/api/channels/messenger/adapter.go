package messenger

import (
	"context"
	"fmt"

	"github.com/Conversly/messenger-relay/internal/core"
)

// Adapter delivers outbound messages for Facebook Page channels
type Adapter struct {
	client *Client
}

func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) Platform() core.Platform {
	return core.PlatformMessenger
}

func (a *Adapter) Send(ctx context.Context, ch *core.ChannelConfig, msg core.OutboundMessage) (string, error) {
	out, err := a.client.SendMessage(ctx, SendInput{
		AccessToken: ch.AccessToken,
		RecipientID: msg.RecipientID,
		Text:        msg.Text,
		ImageURL:    msg.MediaURL,
	})
	if err != nil {
		return "", err
	}
	return out.MessageID, nil
}

// ResolveMediaURL is not needed on Messenger: attachments arrive with their URL.
func (a *Adapter) ResolveMediaURL(ctx context.Context, ch *core.ChannelConfig, mediaID string) (string, error) {
	return "", fmt.Errorf("messenger media ids are not resolvable: %w", core.ErrUnsupportedPlatform)
}

func (a *Adapter) LookupDisplayName(ctx context.Context, ch *core.ChannelConfig, participantID string) (string, error) {
	profile, err := a.client.GetProfile(ctx, ch.AccessToken, participantID)
	if err != nil {
		return "", err
	}
	return profile.DisplayName(), nil
}
