package whatsapp

// ObjectBusinessAccount is the webhook "object" value for WhatsApp Cloud API deliveries.
const ObjectBusinessAccount = "whatsapp_business_account"

// FieldMessages is the change field that carries messages and statuses.
const FieldMessages = "messages"

// WebhookPayload represents the structure of a Meta webhook payload
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry represents a single entry in the webhook payload. ID is the WABA id.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change represents a change notification
type Change struct {
	Value Value  `json:"value"`
	Field string `json:"field"`
}

// Value contains the actual message data
type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
	Statuses         []Status  `json:"statuses,omitempty"`
}

// Metadata contains phone number information
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact represents a WhatsApp contact
type Contact struct {
	Profile Profile `json:"profile"`
	WaID    string  `json:"wa_id"`
}

// Profile contains contact profile information
type Profile struct {
	Name string `json:"name"`
}

// Message represents an incoming WhatsApp message
type Message struct {
	From        string       `json:"from"`
	ID          string       `json:"id"`
	Timestamp   string       `json:"timestamp"` // unix seconds
	Type        string       `json:"type"`
	Text        *TextMessage `json:"text,omitempty"`
	Image       *MediaInfo   `json:"image,omitempty"`
	Document    *MediaInfo   `json:"document,omitempty"`
	Audio       *MediaInfo   `json:"audio,omitempty"`
	Video       *MediaInfo   `json:"video,omitempty"`
	Sticker     *MediaInfo   `json:"sticker,omitempty"`
	Button      *Button      `json:"button,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
}

// TextMessage represents a text message
type TextMessage struct {
	Body string `json:"body"`
}

// MediaInfo represents media message details. ID is resolved to a URL via the media endpoint.
type MediaInfo struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Button is a template quick-reply button press
type Button struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// Interactive is a reply to an interactive button or list message
type Interactive struct {
	Type        string `json:"type"`
	ButtonReply *Reply `json:"button_reply,omitempty"`
	ListReply   *Reply `json:"list_reply,omitempty"`
}

type Reply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Status represents a message status update
type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"` // sent, delivered, read, failed
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// Media returns the first media object on the message, if any.
func (m *Message) Media() *MediaInfo {
	for _, media := range []*MediaInfo{m.Image, m.Video, m.Audio, m.Document, m.Sticker} {
		if media != nil && media.ID != "" {
			return media
		}
	}
	return nil
}

// Body returns the human-readable text of the message: text body, media caption,
// or the title of a button or interactive reply.
func (m *Message) Body() string {
	if m.Text != nil && m.Text.Body != "" {
		return m.Text.Body
	}
	if media := m.Media(); media != nil && media.Caption != "" {
		return media.Caption
	}
	if m.Button != nil {
		if m.Button.Text != "" {
			return m.Button.Text
		}
		return m.Button.Payload
	}
	if m.Interactive != nil {
		if r := m.Interactive.ButtonReply; r != nil {
			return r.Title
		}
		if r := m.Interactive.ListReply; r != nil {
			return r.Title
		}
	}
	return ""
}

// ContactName returns the profile name for waID from the change's contacts list.
func (v *Value) ContactName(waID string) string {
	for _, c := range v.Contacts {
		if c.WaID == waID {
			return c.Profile.Name
		}
	}
	return ""
}
