package messages

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ProcessMessageRequest is the direct-processing body used by internal tools
// that bypass the platform webhook shape.
type ProcessMessageRequest struct {
	SenderID    string    `json:"senderId" binding:"required"`
	MessageText string    `json:"messageText"`
	MessageID   string    `json:"messageId"`
	PageID      string    `json:"pageId" binding:"required"`
	Timestamp   Timestamp `json:"timestamp"`
	ImageURL    string    `json:"imageUrl"`
	SenderType  string    `json:"senderType"`
	IsEcho      bool      `json:"isEcho"`
	Platform    string    `json:"platform"`
}

type ProcessMessageResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	AutoReplyWasSent *bool  `json:"autoReplyWasSent,omitempty"`
	ConversationID   string `json:"conversationId,omitempty"`
}

// SendMessageRequest is proxied to the Messenger Send API unchanged.
type SendMessageRequest struct {
	AccessToken string          `json:"access_token"`
	RecipientID string          `json:"recipient_id"`
	Message     json.RawMessage `json:"message"`
}

// Timestamp accepts unix milliseconds, a numeric string, or an RFC 3339 string.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] != '"' {
		ms, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid timestamp %s", data)
		}
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q", raw)
	}
	t.Time = parsed.UTC()
	return nil
}
