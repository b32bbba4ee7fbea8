package webhook

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/Conversly/messenger-relay/internal/api/channels/messenger"
	"github.com/Conversly/messenger-relay/internal/api/channels/whatsapp"
	"github.com/Conversly/messenger-relay/internal/core"
)

// ErrUnrecognizedPayload is returned for bodies that are not Messenger or WhatsApp deliveries.
var ErrUnrecognizedPayload = errors.New("unrecognized webhook payload")

// Batch is one webhook delivery normalized into envelopes, in payload order.
type Batch struct {
	Platform  core.Platform
	Envelopes []core.Envelope
}

// ParseWebhook discriminates on the "object" field and normalizes every
// conversational event. Receipts and statuses are dropped.
func ParseWebhook(body []byte) (*Batch, error) {
	var head struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return nil, ErrUnrecognizedPayload
	}

	switch head.Object {
	case messenger.ObjectPage:
		var payload messenger.WebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, ErrUnrecognizedPayload
		}
		return &Batch{Platform: core.PlatformMessenger, Envelopes: messengerEnvelopes(&payload)}, nil
	case whatsapp.ObjectBusinessAccount:
		var payload whatsapp.WebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, ErrUnrecognizedPayload
		}
		return &Batch{Platform: core.PlatformWhatsApp, Envelopes: whatsappEnvelopes(&payload)}, nil
	default:
		return nil, ErrUnrecognizedPayload
	}
}

func messengerEnvelopes(payload *messenger.WebhookPayload) []core.Envelope {
	var out []core.Envelope
	for _, entry := range payload.Entry {
		for i := range entry.Messaging {
			ev := &entry.Messaging[i]
			if !ev.IsConversational() {
				continue
			}

			isEcho := ev.Message != nil && ev.Message.IsEcho
			customer, page := ev.Sender.ID, ev.Recipient.ID
			role := core.RoleCustomer
			if isEcho {
				customer, page = ev.Recipient.ID, ev.Sender.ID
				role = core.RoleBusiness
			}

			channelID := entry.ID
			if channelID == "" {
				channelID = page
			}

			env := core.Envelope{
				Platform:   core.PlatformMessenger,
				ChannelID:  channelID,
				SenderID:   customer,
				SenderRole: role,
				IsEcho:     isEcho,
				Timestamp:  fromMillis(ev.Timestamp, entry.Time),
			}
			if ev.Message != nil {
				env.Text = ev.Message.Text
				env.PlatformMessageID = ev.Message.MID
				env.MediaURL = ev.Message.FirstMediaURL()
			} else {
				env.Text = ev.Postback.Title
				if env.Text == "" {
					env.Text = ev.Postback.Payload
				}
				env.PlatformMessageID = ev.Postback.MID
			}
			out = append(out, env)
		}
	}
	return out
}

func whatsappEnvelopes(payload *whatsapp.WebhookPayload) []core.Envelope {
	var out []core.Envelope
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != whatsapp.FieldMessages {
				continue
			}
			value := change.Value
			for i := range value.Messages {
				msg := &value.Messages[i]
				env := core.Envelope{
					Platform:          core.PlatformWhatsApp,
					ChannelID:         value.Metadata.PhoneNumberID,
					SenderID:          msg.From,
					Text:              msg.Body(),
					PlatformMessageID: msg.ID,
					SenderRole:        core.RoleCustomer,
					Timestamp:         fromSeconds(msg.Timestamp),
					DisplayName:       value.ContactName(msg.From),
				}
				if media := msg.Media(); media != nil {
					env.MediaID = media.ID
				}
				// reactions, system notices and unsupported types carry nothing to store
				if env.Text == "" && env.MediaID == "" {
					continue
				}
				out = append(out, env)
			}
		}
	}
	return out
}

func fromMillis(ms, fallback int64) time.Time {
	if ms == 0 {
		ms = fallback
	}
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func fromSeconds(raw string) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs == 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
