package channels

import (
	"context"

	"github.com/Conversly/messenger-relay/internal/core"
)

// Sender defines the interface for platform-specific outbound implementations
type Sender interface {
	// Platform returns the platform this sender serves
	Platform() core.Platform

	// Send delivers one message and returns the platform message id
	Send(ctx context.Context, ch *core.ChannelConfig, msg core.OutboundMessage) (string, error)

	// ResolveMediaURL turns a platform media handle into a downloadable URL
	ResolveMediaURL(ctx context.Context, ch *core.ChannelConfig, mediaID string) (string, error)

	// LookupDisplayName returns the participant's name, or "" when the platform has none
	LookupDisplayName(ctx context.Context, ch *core.ChannelConfig, participantID string) (string, error)
}
