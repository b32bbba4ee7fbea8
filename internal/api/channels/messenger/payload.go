package messenger

// ObjectPage is the webhook "object" value for Messenger deliveries.
const ObjectPage = "page"

// WebhookPayload is the top-level Messenger webhook body.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry holds the events for one page. ID is the page id.
type Entry struct {
	ID        string      `json:"id"`
	Time      int64       `json:"time"`
	Messaging []Messaging `json:"messaging"`
}

// Messaging is one event: a message, an echo, a postback, or a receipt.
type Messaging struct {
	Sender    Party     `json:"sender"`
	Recipient Party     `json:"recipient"`
	Timestamp int64     `json:"timestamp"` // unix milliseconds
	Message   *Message  `json:"message,omitempty"`
	Postback  *Postback `json:"postback,omitempty"`
	Delivery  *Receipt  `json:"delivery,omitempty"`
	Read      *Receipt  `json:"read,omitempty"`
}

// Party is a PSID or a page id.
type Party struct {
	ID string `json:"id"`
}

type Message struct {
	MID         string       `json:"mid"`
	Text        string       `json:"text,omitempty"`
	IsEcho      bool         `json:"is_echo,omitempty"`
	AppID       int64        `json:"app_id,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	QuickReply  *QuickReply  `json:"quick_reply,omitempty"`
}

type Attachment struct {
	Type    string            `json:"type"` // image, video, audio, file, fallback
	Payload AttachmentPayload `json:"payload"`
}

type AttachmentPayload struct {
	URL string `json:"url,omitempty"`
}

type QuickReply struct {
	Payload string `json:"payload"`
}

type Postback struct {
	MID     string `json:"mid,omitempty"`
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

type Receipt struct {
	MIDs      []string `json:"mids,omitempty"`
	Watermark int64    `json:"watermark"`
}

// IsConversational reports whether the event carries a message or a postback.
// Delivery and read receipts do not.
func (m *Messaging) IsConversational() bool {
	return m.Message != nil || m.Postback != nil
}

// FirstMediaURL returns the first attachment URL, if any.
func (m *Message) FirstMediaURL() string {
	for _, a := range m.Attachments {
		if a.Payload.URL != "" {
			return a.Payload.URL
		}
	}
	return ""
}
