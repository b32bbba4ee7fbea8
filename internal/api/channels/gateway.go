package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Conversly/messenger-relay/internal/api/channels/graph"
	"github.com/Conversly/messenger-relay/internal/api/channels/messenger"
	"github.com/Conversly/messenger-relay/internal/api/channels/whatsapp"
	"github.com/Conversly/messenger-relay/internal/config"
	"github.com/Conversly/messenger-relay/internal/core"
)

var errMissingAccessToken = errors.New("channel has no access token")

// Gateway routes outbound calls to the sender for the channel's platform.
type Gateway struct {
	senders map[core.Platform]Sender
}

var _ core.OutboundGateway = (*Gateway)(nil)

func NewGateway(senders ...Sender) *Gateway {
	g := &Gateway{senders: make(map[core.Platform]Sender, len(senders))}
	for _, s := range senders {
		g.senders[s.Platform()] = s
	}
	return g
}

// NewMetaGateway wires the Messenger and WhatsApp senders against the configured Graph API.
func NewMetaGateway(cfg config.Meta, httpClient *http.Client) *Gateway {
	opts := []graph.Option{
		graph.WithBaseURL(cfg.GraphBaseURL),
		graph.WithAPIVersion(cfg.GraphAPIVersion),
		graph.WithHTTPClient(httpClient),
	}
	return NewGateway(
		messenger.NewAdapter(messenger.NewClient(opts...)),
		whatsapp.NewAdapter(whatsapp.NewClient(opts...)),
	)
}

func (g *Gateway) Send(ctx context.Context, ch *core.ChannelConfig, msg core.OutboundMessage) (string, error) {
	s, err := g.sender(ch)
	if err != nil {
		return "", err
	}
	id, err := s.Send(ctx, ch, msg)
	if err != nil {
		return "", fmt.Errorf("%s send failed: %w", ch.Platform, err)
	}
	return id, nil
}

func (g *Gateway) ResolveMediaURL(ctx context.Context, ch *core.ChannelConfig, mediaID string) (string, error) {
	s, err := g.sender(ch)
	if err != nil {
		return "", err
	}
	return s.ResolveMediaURL(ctx, ch, mediaID)
}

func (g *Gateway) LookupDisplayName(ctx context.Context, ch *core.ChannelConfig, participantID string) (string, error) {
	s, err := g.sender(ch)
	if err != nil {
		return "", err
	}
	return s.LookupDisplayName(ctx, ch, participantID)
}

func (g *Gateway) sender(ch *core.ChannelConfig) (Sender, error) {
	if ch == nil {
		return nil, core.ErrChannelNotFound
	}
	s, ok := g.senders[ch.Platform]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedPlatform, ch.Platform)
	}
	if ch.AccessToken == "" {
		return nil, errMissingAccessToken
	}
	return s, nil
}
