package whatsapp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Conversly/messenger-relay/internal/api/channels/graph"
)

// Client is a WhatsApp Cloud API client
type Client struct {
	graph *graph.Client
}

func NewClient(opts ...graph.Option) *Client {
	return &Client{graph: graph.New(opts...)}
}

// messageRequest represents the Meta API request body
type messageRequest struct {
	MessagingProduct string          `json:"messaging_product"`
	RecipientType    string          `json:"recipient_type"`
	To               string          `json:"to"`
	Context          *messageContext `json:"context,omitempty"`
	Type             string          `json:"type"`
	Text             *textContent    `json:"text,omitempty"`
	Image            *imageContent   `json:"image,omitempty"`
}

// messageContext for replying to a specific message
type messageContext struct {
	MessageID string `json:"message_id"`
}

type textContent struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type imageContent struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type messageResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendInput is one outbound message. ImageURL wins over Text; Text becomes the caption.
type SendInput struct {
	AccessToken   string
	PhoneNumberID string
	To            string
	Text          string
	ImageURL      string
	ReplyTo       string
}

// SendMessage sends a text or image message and returns the wamid
func (c *Client) SendMessage(ctx context.Context, in SendInput) (string, error) {
	if in.PhoneNumberID == "" || in.To == "" {
		return "", fmt.Errorf("phone number id and recipient are required")
	}

	body := messageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               in.To,
	}
	switch {
	case in.ImageURL != "":
		body.Type = "image"
		body.Image = &imageContent{Link: in.ImageURL, Caption: in.Text}
	case in.Text != "":
		body.Type = "text"
		body.Text = &textContent{Body: in.Text}
	default:
		return "", fmt.Errorf("message has neither text nor image")
	}
	if in.ReplyTo != "" {
		body.Context = &messageContext{MessageID: in.ReplyTo}
	}

	endpoint := c.graph.Endpoint(url.PathEscape(in.PhoneNumberID) + "/messages")
	req, err := c.graph.NewJSONRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+in.AccessToken)

	var out messageResponse
	if err := c.graph.Do(req, &out); err != nil {
		return "", err
	}
	if len(out.Messages) == 0 {
		return "", fmt.Errorf("no message ID returned from Meta API")
	}
	return out.Messages[0].ID, nil
}

// Media is the media endpoint answer. URL is short-lived and needs the bearer token to download.
type Media struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	FileSize int64  `json:"file_size"`
}

// GetMediaURL resolves a media id received in a webhook
func (c *Client) GetMediaURL(ctx context.Context, accessToken, mediaID string) (*Media, error) {
	req, err := c.graph.NewJSONRequest(ctx, http.MethodGet, c.graph.Endpoint(url.PathEscape(mediaID)), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var out Media
	if err := c.graph.Do(req, &out); err != nil {
		return nil, err
	}
	if out.URL == "" {
		return nil, fmt.Errorf("media %s has no url", mediaID)
	}
	return &out, nil
}
