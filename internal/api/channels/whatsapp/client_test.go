package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Conversly/messenger-relay/internal/api/channels/graph"
	"github.com/Conversly/messenger-relay/internal/core"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(graph.WithBaseURL(srv.URL), graph.WithAPIVersion("v99.0"))
}

func TestAdapterSendText(t *testing.T) {
	var got messageRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v99.0/1065/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer wa-token" {
			t.Errorf("Authorization = %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"messaging_product":"whatsapp","messages":[{"id":"wamid.OUT"}]}`)
	})

	adapter := NewAdapter(client)
	ch := &core.ChannelConfig{ChannelID: "1065", Platform: core.PlatformWhatsApp, AccessToken: "wa-token"}
	id, err := adapter.Send(context.Background(), ch, core.OutboundMessage{RecipientID: "15551234567", Text: "Hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "wamid.OUT" {
		t.Errorf("id = %q", id)
	}
	if got.MessagingProduct != "whatsapp" || got.Type != "text" || got.Text == nil || got.Text.Body != "Hello" || got.To != "15551234567" {
		t.Errorf("request = %+v", got)
	}
}

func TestSendImageUsesCaption(t *testing.T) {
	var got messageRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"messages":[{"id":"wamid.IMG"}]}`)
	})

	_, err := client.SendMessage(context.Background(), SendInput{
		AccessToken: "t", PhoneNumberID: "1065", To: "1555", Text: "look", ImageURL: "https://cdn.example/p.jpg", ReplyTo: "wamid.IN",
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got.Type != "image" || got.Image == nil || got.Image.Link != "https://cdn.example/p.jpg" || got.Image.Caption != "look" {
		t.Errorf("image = %+v", got.Image)
	}
	if got.Context == nil || got.Context.MessageID != "wamid.IN" {
		t.Errorf("context = %+v", got.Context)
	}
}

func TestSendMessageErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Invalid OAuth access token","code":190}}`)
	})

	_, err := client.SendMessage(context.Background(), SendInput{AccessToken: "bad", PhoneNumberID: "1065", To: "1555", Text: "x"})
	var apiErr *graph.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 190 || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("err = %v", err)
	}

	empty := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"messages":[]}`)
	})
	if _, err := empty.SendMessage(context.Background(), SendInput{PhoneNumberID: "1065", To: "1555", Text: "x"}); err == nil {
		t.Error("expected error when no message id is returned")
	}
}

func TestAdapterResolveMediaURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v99.0/media-77" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"id":"media-77","url":"https://lookaside.example/media-77","mime_type":"image/jpeg"}`)
	})

	ch := &core.ChannelConfig{ChannelID: "1065", AccessToken: "t"}
	url, err := NewAdapter(client).ResolveMediaURL(context.Background(), ch, "media-77")
	if err != nil {
		t.Fatalf("ResolveMediaURL: %v", err)
	}
	if url != "https://lookaside.example/media-77" {
		t.Errorf("url = %q", url)
	}
}

func TestMessageBody(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"text", Message{Text: &TextMessage{Body: "hi"}}, "hi"},
		{"caption", Message{Image: &MediaInfo{ID: "m1", Caption: "pic"}}, "pic"},
		{"media only", Message{Image: &MediaInfo{ID: "m1"}}, ""},
		{"button", Message{Button: &Button{Payload: "YES"}}, "YES"},
		{"list reply", Message{Interactive: &Interactive{Type: "list_reply", ListReply: &Reply{ID: "1", Title: "Option A"}}}, "Option A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.Body(); got != tt.want {
				t.Errorf("Body() = %q, want %q", got, tt.want)
			}
		})
	}
}
