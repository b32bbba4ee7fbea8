package whatsapp

import (
	"context"

	"github.com/Conversly/messenger-relay/internal/core"
)

// Adapter delivers outbound messages for WhatsApp number channels.
// The channel id is the phone_number_id.
type Adapter struct {
	client *Client
}

func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) Platform() core.Platform {
	return core.PlatformWhatsApp
}

func (a *Adapter) Send(ctx context.Context, ch *core.ChannelConfig, msg core.OutboundMessage) (string, error) {
	return a.client.SendMessage(ctx, SendInput{
		AccessToken:   ch.AccessToken,
		PhoneNumberID: ch.ChannelID,
		To:            msg.RecipientID,
		Text:          msg.Text,
		ImageURL:      msg.MediaURL,
	})
}

func (a *Adapter) ResolveMediaURL(ctx context.Context, ch *core.ChannelConfig, mediaID string) (string, error) {
	media, err := a.client.GetMediaURL(ctx, ch.AccessToken, mediaID)
	if err != nil {
		return "", err
	}
	return media.URL, nil
}

// LookupDisplayName returns nothing: WhatsApp has no profile endpoint, names arrive in webhook contacts.
func (a *Adapter) LookupDisplayName(ctx context.Context, ch *core.ChannelConfig, participantID string) (string, error) {
	return "", nil
}
