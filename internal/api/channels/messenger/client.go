package messenger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Conversly/messenger-relay/internal/api/channels/graph"
)

const messagingTypeResponse = "RESPONSE"

// Client is a Messenger Send API and User Profile API client
type Client struct {
	graph *graph.Client
}

func NewClient(opts ...graph.Option) *Client {
	return &Client{graph: graph.New(opts...)}
}

// SendInput is one outbound message. ImageURL wins over Text when both are set.
type SendInput struct {
	AccessToken string
	RecipientID string
	Text        string
	ImageURL    string
}

type SendOutput struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

type sendRequest struct {
	Recipient     Party           `json:"recipient"`
	MessagingType string          `json:"messaging_type"`
	Message       json.RawMessage `json:"message"`
}

type outboundMessage struct {
	Text       string              `json:"text,omitempty"`
	Attachment *outboundAttachment `json:"attachment,omitempty"`
}

type outboundAttachment struct {
	Type    string                 `json:"type"`
	Payload outboundAttachmentBody `json:"payload"`
}

type outboundAttachmentBody struct {
	URL        string `json:"url"`
	IsReusable bool   `json:"is_reusable"`
}

// SendMessage delivers a text or image message to a PSID
func (c *Client) SendMessage(ctx context.Context, in SendInput) (*SendOutput, error) {
	if in.RecipientID == "" {
		return nil, fmt.Errorf("recipient id is required")
	}

	msg := outboundMessage{Text: in.Text}
	if in.ImageURL != "" {
		msg = outboundMessage{Attachment: &outboundAttachment{
			Type:    "image",
			Payload: outboundAttachmentBody{URL: in.ImageURL, IsReusable: true},
		}}
	}
	if msg.Text == "" && msg.Attachment == nil {
		return nil, fmt.Errorf("message has neither text nor image")
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}

	req, err := c.graph.NewJSONRequest(ctx, http.MethodPost, c.messagesEndpoint(in.AccessToken), sendRequest{
		Recipient:     Party{ID: in.RecipientID},
		MessagingType: messagingTypeResponse,
		Message:       raw,
	})
	if err != nil {
		return nil, err
	}

	var out SendOutput
	if err := c.graph.Do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendRaw forwards a caller-built message object and returns the Graph status and body
// untouched. Only transport failures are errors.
func (c *Client) SendRaw(ctx context.Context, accessToken, recipientID string, message json.RawMessage) (int, []byte, error) {
	req, err := c.graph.NewJSONRequest(ctx, http.MethodPost, c.messagesEndpoint(accessToken), sendRequest{
		Recipient:     Party{ID: recipientID},
		MessagingType: messagingTypeResponse,
		Message:       message,
	})
	if err != nil {
		return 0, nil, err
	}
	return c.graph.DoRaw(req)
}

// Profile is the subset of the User Profile API we read.
type Profile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// DisplayName prefers the full name, then first and last name joined.
func (p *Profile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// GetProfile fetches a customer's public profile by PSID
func (c *Client) GetProfile(ctx context.Context, accessToken, psid string) (*Profile, error) {
	params := url.Values{}
	params.Set("fields", "first_name,last_name,name")
	params.Set("access_token", accessToken)

	endpoint := c.graph.Endpoint(url.PathEscape(psid)) + "?" + params.Encode()
	req, err := c.graph.NewJSONRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var out Profile
	if err := c.graph.Do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) messagesEndpoint(accessToken string) string {
	params := url.Values{}
	params.Set("access_token", accessToken)
	return c.graph.Endpoint("me/messages") + "?" + params.Encode()
}
