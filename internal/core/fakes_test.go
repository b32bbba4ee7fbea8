package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/Conversly/messenger-relay/internal/llm"
)

// memStore is a map-backed Store used by the core tests.
type memStore struct {
	mu            sync.Mutex
	seq           int
	channels      map[string]ChannelConfig
	conversations map[string]*Conversation
	messages      []*Message
	failInsert    error
	failActivity  int // next N conversation updates inside InsertInbound fail
	channelLoads  int
	channelGets   int
}

func newMemStore(channels ...ChannelConfig) *memStore {
	s := &memStore{
		channels:      make(map[string]ChannelConfig),
		conversations: make(map[string]*Conversation),
	}
	for _, ch := range channels {
		s.channels[ch.ChannelID] = ch
	}
	return s
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memStore) LoadChannels(ctx context.Context) ([]ChannelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelLoads++
	out := make([]ChannelConfig, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ch)
	}
	return out, nil
}

func (s *memStore) GetChannel(ctx context.Context, channelID string) (*ChannelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelGets++
	ch, ok := s.channels[channelID]
	if !ok {
		return nil, nil
	}
	return &ch, nil
}

func (s *memStore) UpsertChannel(ctx context.Context, ch ChannelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[ch.ChannelID] = ch
	return nil
}

func (s *memStore) SetChannelActive(ctx context.Context, channelID string, active bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return false, nil
	}
	ch.Active = active
	s.channels[channelID] = ch
	return true, nil
}

func (s *memStore) ResolveOrCreate(ctx context.Context, key ConversationKey, hint string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.ParticipantID == key.ParticipantID && c.ChannelID == key.ChannelID {
			return c.ID, false, nil
		}
	}
	id := s.nextID("conv")
	s.conversations[id] = &Conversation{
		ID: id, TenantID: key.TenantID, ChannelID: key.ChannelID, ParticipantID: key.ParticipantID,
		Platform: key.Platform, ParticipantName: hint, Online: true, Status: ConversationStatusActive,
	}
	return id, true, nil
}

func (s *memStore) RecordActivity(ctx context.Context, id, text string, role SenderRole, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordActivityLocked(id, text, role, at)
}

func (s *memStore) recordActivityLocked(id, text string, role SenderRole, at time.Time) error {
	c, ok := s.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	c.LastMessageText = text
	c.LastMessageAt = &at
	c.LastSenderRole = role
	if role == RoleCustomer {
		c.UnreadCount++
	}
	return nil
}

func (s *memStore) UpdateDisplayName(ctx context.Context, participantID, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := false
	for _, c := range s.conversations {
		if c.ParticipantID == participantID && c.ParticipantName != name {
			c.ParticipantName = name
			updated = true
		}
	}
	return updated, nil
}

func (s *memStore) MarkConversationRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	c.UnreadCount = 0
	for _, m := range s.messages {
		if m.ConversationID == id {
			m.IsRead = true
		}
	}
	return nil
}

func (s *memStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) ListConversations(ctx context.Context, channelID string, limit, offset int) ([]Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Conversation
	for _, c := range s.conversations {
		if channelID == "" || c.ChannelID == channelID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) InsertInbound(ctx context.Context, in InboundMessage) (InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert != nil {
		return InsertResult{}, s.failInsert
	}
	if in.PlatformMessageID != "" {
		for _, m := range s.messages {
			if m.ConversationID == in.ConversationID && m.PlatformMessageID == in.PlatformMessageID {
				return InsertResult{Status: AlreadyExists}, nil
			}
		}
	}
	// the message and the conversation update commit together
	if s.failActivity > 0 {
		s.failActivity--
		return InsertResult{}, errors.New("conversation update failed")
	}
	if err := s.recordActivityLocked(in.ConversationID, in.LastMessageText(), in.SenderRole, in.Timestamp); err != nil {
		return InsertResult{}, err
	}
	id := s.nextID("msg")
	s.messages = append(s.messages, &Message{
		ID: id, ConversationID: in.ConversationID, PlatformMessageID: in.PlatformMessageID,
		SenderRole: in.SenderRole, Content: in.Text, MediaURL: in.MediaURL, CreatedAt: in.Timestamp,
	})
	return InsertResult{MessageID: id, Status: Inserted}, nil
}

func (s *memStore) InsertOutbound(ctx context.Context, convID, text, mediaURL string, role SenderRole) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID("msg")
	s.messages = append(s.messages, &Message{
		ID: id, ConversationID: convID, SenderRole: role, Content: text, MediaURL: mediaURL, CreatedAt: time.Now(),
	})
	return id, nil
}

func (s *memStore) SetPlatformMessageID(ctx context.Context, messageID, pid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == messageID && m.PlatformMessageID == "" {
			m.PlatformMessageID = pid
		}
	}
	return nil
}

func (s *memStore) ListByConversation(ctx context.Context, convID string, limit, offset int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.messages {
		if m.ConversationID == convID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *memStore) RecentMessages(ctx context.Context, convID string, limit int) ([]Message, error) {
	all, _ := s.ListByConversation(ctx, convID, 0, 0)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *memStore) messagesIn(convID string) []Message {
	out, _ := s.ListByConversation(context.Background(), convID, 0, 0)
	return out
}

func (s *memStore) Ping(ctx context.Context) error { return nil }
func (s *memStore) Close() error { return nil }

type fakeProvider struct {
	mu    sync.Mutex
	reply string
	err   error
	calls [][]*schema.Message
	cfgs  []llm.ModelConfig
}

func (f *fakeProvider) Generate(ctx context.Context, messages []*schema.Message, cfg llm.ModelConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	f.cfgs = append(f.cfgs, cfg)
	return f.reply, f.err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type apiFailure struct{ body string }

func (e *apiFailure) Error() string { return "send failed" }
func (e *apiFailure) ResponseBody() string { return e.body }

type fakeGateway struct {
	mu       sync.Mutex
	sent     []OutboundMessage
	sendErr  error
	nextID   string
	profile  string
	mediaURL string
}

func (g *fakeGateway) Send(ctx context.Context, ch *ChannelConfig, msg OutboundMessage) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, msg)
	if g.sendErr != nil {
		return "", g.sendErr
	}
	return g.nextID, nil
}

func (g *fakeGateway) ResolveMediaURL(ctx context.Context, ch *ChannelConfig, mediaID string) (string, error) {
	if g.mediaURL == "" {
		return "", errors.New("no media")
	}
	return g.mediaURL, nil
}

func (g *fakeGateway) LookupDisplayName(ctx context.Context, ch *ChannelConfig, participantID string) (string, error) {
	if g.profile == "" {
		return "", errors.New("no profile")
	}
	return g.profile, nil
}

func (g *fakeGateway) sendCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []MessageEvent
}

func (r *recordingPublisher) PublishMessage(ctx context.Context, evt MessageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}
