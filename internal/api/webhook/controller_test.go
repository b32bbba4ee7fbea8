package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"

	"github.com/Conversly/messenger-relay/internal/core"
	"github.com/Conversly/messenger-relay/internal/llm"
	"github.com/Conversly/messenger-relay/internal/loaders"
)

type countingProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *countingProvider) Generate(ctx context.Context, messages []*schema.Message, cfg llm.ModelConfig) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return "Hi! How can we help?", nil
}

func (p *countingProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordingGateway struct {
	mu   sync.Mutex
	sent []core.OutboundMessage
}

func (g *recordingGateway) Send(ctx context.Context, ch *core.ChannelConfig, msg core.OutboundMessage) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, msg)
	return "m_reply_" + msg.RecipientID, nil
}

func (g *recordingGateway) ResolveMediaURL(ctx context.Context, ch *core.ChannelConfig, mediaID string) (string, error) {
	return "https://media.example/" + mediaID, nil
}

func (g *recordingGateway) LookupDisplayName(ctx context.Context, ch *core.ChannelConfig, participantID string) (string, error) {
	return "", nil
}

func (g *recordingGateway) Sent() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

type harness struct {
	router   *gin.Engine
	ctrl     *Controller
	store    core.Store
	provider *countingProvider
	gateway  *recordingGateway
}

func newHarness(t *testing.T, appSecret string, channels ...core.ChannelConfig) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := loaders.NewSQLiteClient(filepath.Join(t.TempDir(), "webhook.db"))
	if err != nil {
		t.Fatalf("NewSQLiteClient: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	for _, ch := range channels {
		if err := store.UpsertChannel(ctx, ch); err != nil {
			t.Fatalf("UpsertChannel: %v", err)
		}
	}

	provider := &countingProvider{}
	gateway := &recordingGateway{}
	stats := core.NewStats()
	engine := core.NewAutoReplyEngine(core.AutoReplyDeps{
		Messages:      store,
		Conversations: store,
		Provider:      provider,
		Gateway:       gateway,
		Stats:         stats,
		Defaults:      core.ReplyDefaults{Model: "test-model", HistoryWindow: 10, SystemPrompt: "be nice", APIKeys: []string{"k"}},
	})
	pipeline := core.NewPipeline(core.PipelineDeps{
		Registry:      core.NewChannelRegistry(store),
		Conversations: store,
		Messages:      store,
		Gateway:       gateway,
		Engine:        engine,
		Stats:         stats,
	})

	ctrl := NewController(pipeline, "verify-me", appSecret, 10*time.Second)
	router := gin.New()
	RegisterRoutes(router, ctrl)

	return &harness{router: router, ctrl: ctrl, store: store, provider: provider, gateway: gateway}
}

func (h *harness) post(t *testing.T, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.ctrl.Wait(ctx); err != nil {
		t.Fatalf("background processing did not finish: %v", err)
	}
	return w
}

func (h *harness) conversations(t *testing.T) []core.Conversation {
	t.Helper()
	convs, err := h.store.ListConversations(context.Background(), "", 50, 0)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	return convs
}

func (h *harness) messages(t *testing.T, convID string) []core.Message {
	t.Helper()
	msgs, err := h.store.ListByConversation(context.Background(), convID, 50, 0)
	if err != nil {
		t.Fatalf("ListByConversation: %v", err)
	}
	return msgs
}

var autoReplyPage = core.ChannelConfig{
	ChannelID: "PAGE_1", TenantID: "t1", Platform: core.PlatformMessenger, AccessToken: "tok",
	Active: true, WebhookEnabled: true, AutoReplyEnabled: true,
}

const helloPayload = `{"object":"page","entry":[{"id":"PAGE_1","messaging":[
	{"sender":{"id":"U1"},"recipient":{"id":"PAGE_1"},"timestamp":1700000000000,"message":{"mid":"m_1","text":"Hello"}}]}]}`

func TestVerifyWebhook(t *testing.T) {
	h := newHarness(t, "")
	tests := []struct {
		name     string
		query    string
		wantCode int
		wantBody string
	}{
		{"valid", "hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", http.StatusOK, "12345"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=12345", http.StatusForbidden, ""},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=12345", http.StatusForbidden, ""},
		{"missing challenge", "hub.mode=subscribe&hub.verify_token=verify-me", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook?"+tt.query, nil))
			if w.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestWebhookHelloScenario(t *testing.T) {
	h := newHarness(t, "", autoReplyPage)

	w := h.post(t, helloPayload, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"received"`) {
		t.Fatalf("response = %d %s", w.Code, w.Body.String())
	}

	convs := h.conversations(t)
	if len(convs) != 1 {
		t.Fatalf("conversations = %d, want 1", len(convs))
	}
	conv := convs[0]
	if conv.ParticipantID != "U1" || conv.ChannelID != "PAGE_1" || conv.UnreadCount != 1 {
		t.Errorf("conversation = %+v", conv)
	}

	msgs := h.messages(t, conv.ID)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want customer + reply", len(msgs))
	}
	if msgs[0].SenderRole != core.RoleCustomer || msgs[0].Content != "Hello" {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].SenderRole != core.RoleBusiness || msgs[1].PlatformMessageID != "m_reply_U1" {
		t.Errorf("reply = %+v", msgs[1])
	}
	if h.provider.Calls() != 1 || h.gateway.Sent() != 1 {
		t.Errorf("provider calls = %d, sends = %d", h.provider.Calls(), h.gateway.Sent())
	}
}

func TestWebhookRedeliveryIsIdempotent(t *testing.T) {
	h := newHarness(t, "", autoReplyPage)

	h.post(t, helloPayload, nil)
	w := h.post(t, helloPayload, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("redelivery code = %d", w.Code)
	}

	convs := h.conversations(t)
	if len(convs) != 1 || convs[0].UnreadCount != 1 {
		t.Fatalf("conversations = %+v", convs)
	}
	if msgs := h.messages(t, convs[0].ID); len(msgs) != 2 {
		t.Errorf("messages = %d, want 2", len(msgs))
	}
	if h.provider.Calls() != 1 {
		t.Errorf("provider calls = %d, want 1", h.provider.Calls())
	}
}

func TestWebhookEchoNeverTriggersAI(t *testing.T) {
	h := newHarness(t, "", autoReplyPage)
	echo := `{"object":"page","entry":[{"id":"PAGE_1","messaging":[
		{"sender":{"id":"PAGE_1"},"recipient":{"id":"U1"},"timestamp":1700000000000,"message":{"mid":"m_echo","text":"Thanks!","is_echo":true}}]}]}`

	h.post(t, echo, nil)

	convs := h.conversations(t)
	if len(convs) != 1 || convs[0].ParticipantID != "U1" || convs[0].UnreadCount != 0 {
		t.Fatalf("conversations = %+v", convs)
	}
	msgs := h.messages(t, convs[0].ID)
	if len(msgs) != 1 || msgs[0].SenderRole != core.RoleBusiness {
		t.Errorf("messages = %+v", msgs)
	}
	if h.provider.Calls() != 0 || h.gateway.Sent() != 0 {
		t.Errorf("provider calls = %d, sends = %d", h.provider.Calls(), h.gateway.Sent())
	}
}

func TestWebhookKillSwitch(t *testing.T) {
	disabled := autoReplyPage
	disabled.WebhookEnabled = false
	h := newHarness(t, "", disabled)

	w := h.post(t, helloPayload, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if convs := h.conversations(t); len(convs) != 0 {
		t.Errorf("conversations = %d, want 0", len(convs))
	}
	if h.provider.Calls() != 0 || h.gateway.Sent() != 0 {
		t.Errorf("provider calls = %d, sends = %d", h.provider.Calls(), h.gateway.Sent())
	}
}

func TestWebhookUnrecognizedObject(t *testing.T) {
	h := newHarness(t, "")
	if w := h.post(t, `{"object":"instagram","entry":[]}`, nil); w.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", w.Code)
	}
	if w := h.post(t, `{"object":"page","entry":[]}`, nil); w.Code != http.StatusOK {
		t.Errorf("empty page batch code = %d, want 200", w.Code)
	}
}

func TestWebhookSignature(t *testing.T) {
	h := newHarness(t, "app-secret", autoReplyPage)

	if w := h.post(t, helloPayload, nil); w.Code != http.StatusForbidden {
		t.Errorf("unsigned code = %d, want 403", w.Code)
	}
	if w := h.post(t, helloPayload, map[string]string{SignatureHeader: "sha256=" + Sign([]byte(helloPayload), "wrong")}); w.Code != http.StatusForbidden {
		t.Errorf("bad signature code = %d, want 403", w.Code)
	}
	if len(h.conversations(t)) != 0 {
		t.Fatal("rejected deliveries must not be processed")
	}

	w := h.post(t, helloPayload, map[string]string{SignatureHeader: "sha256=" + Sign([]byte(helloPayload), "app-secret")})
	if w.Code != http.StatusOK {
		t.Fatalf("signed code = %d", w.Code)
	}
	if len(h.conversations(t)) != 1 {
		t.Error("signed delivery was not processed")
	}
}
