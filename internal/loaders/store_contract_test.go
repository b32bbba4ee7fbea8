package loaders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Conversly/messenger-relay/internal/core"
)

// runStoreContract checks the persistence invariants every core.Store must hold.
func runStoreContract(t *testing.T, newStore func(t *testing.T) core.Store) {
	t.Run("InsertInboundIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		convID := mustConversation(t, s, "psid-1", "page-1")

		in := core.InboundMessage{
			ConversationID:    convID,
			Text:              "Hello",
			PlatformMessageID: "m_1",
			SenderRole:        core.RoleCustomer,
			Timestamp:         time.Now(),
		}
		first, err := s.InsertInbound(ctx, in)
		if err != nil {
			t.Fatalf("first insert: %v", err)
		}
		if first.Status != core.Inserted || first.MessageID == "" {
			t.Fatalf("first = %+v", first)
		}
		second, err := s.InsertInbound(ctx, in)
		if err != nil {
			t.Fatalf("second insert returned error: %v", err)
		}
		if second.Status != core.AlreadyExists {
			t.Fatalf("second = %+v, want AlreadyExists", second)
		}

		msgs, err := s.ListByConversation(ctx, convID, 50, 0)
		if err != nil {
			t.Fatalf("ListByConversation: %v", err)
		}
		if len(msgs) != 1 {
			t.Fatalf("rows = %d, want 1", len(msgs))
		}
	})

	t.Run("InsertInboundRecordsActivity", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		convID := mustConversation(t, s, "psid-1", "page-1")

		inputs := []core.InboundMessage{
			{ConversationID: convID, Text: "one", PlatformMessageID: "m_1", SenderRole: core.RoleCustomer, Timestamp: time.Now()},
			{ConversationID: convID, Text: "two", PlatformMessageID: "m_2", SenderRole: core.RoleBusiness, Timestamp: time.Now()},
			{ConversationID: convID, Preview: core.AttachmentPlaceholder, MediaURL: "https://cdn.example/a.jpg", PlatformMessageID: "m_3", SenderRole: core.RoleCustomer, Timestamp: time.Now()},
		}
		for _, in := range inputs {
			if _, err := s.InsertInbound(ctx, in); err != nil {
				t.Fatalf("InsertInbound %s: %v", in.PlatformMessageID, err)
			}
		}
		// redelivery changes nothing
		if _, err := s.InsertInbound(ctx, inputs[0]); err != nil {
			t.Fatalf("redelivery: %v", err)
		}

		conv, err := s.GetConversation(ctx, convID)
		if err != nil {
			t.Fatalf("GetConversation: %v", err)
		}
		if conv.UnreadCount != 2 {
			t.Errorf("UnreadCount = %d, want 2", conv.UnreadCount)
		}
		if conv.LastMessageText != core.AttachmentPlaceholder || conv.LastSenderRole != core.RoleCustomer {
			t.Errorf("last = %q/%q", conv.LastMessageText, conv.LastSenderRole)
		}
	})

	t.Run("InsertInboundIsAtomic", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.InsertInbound(ctx, core.InboundMessage{
			ConversationID: "missing", Text: "hi", PlatformMessageID: "m_1", SenderRole: core.RoleCustomer, Timestamp: time.Now(),
		})
		if err == nil {
			t.Fatal("insert into unknown conversation should fail")
		}
		msgs, err := s.ListByConversation(ctx, "missing", 50, 0)
		if err != nil {
			t.Fatalf("ListByConversation: %v", err)
		}
		if len(msgs) != 0 {
			t.Errorf("rows = %d, want 0 after failed insert", len(msgs))
		}
	})

	t.Run("NullPlatformIDsNeverCollide", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		convID := mustConversation(t, s, "psid-1", "page-1")

		for i := 0; i < 3; i++ {
			res, err := s.InsertInbound(ctx, core.InboundMessage{ConversationID: convID, Text: "x", SenderRole: core.RoleSystem})
			if err != nil || res.Status != core.Inserted {
				t.Fatalf("insert %d = %+v, %v", i, res, err)
			}
		}
		if _, err := s.InsertOutbound(ctx, convID, "reply", "", core.RoleBusiness); err != nil {
			t.Fatalf("InsertOutbound: %v", err)
		}
		msgs, _ := s.ListByConversation(ctx, convID, 50, 0)
		if len(msgs) != 4 {
			t.Fatalf("rows = %d, want 4", len(msgs))
		}
	})

	t.Run("ConcurrentResolveOrCreate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := core.ConversationKey{TenantID: "t1", ParticipantID: "psid-race", ChannelID: "page-1", Platform: core.PlatformMessenger}

		const workers = 16
		ids := make([]string, workers)
		created := make([]bool, workers)
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ids[i], created[i], errs[i] = s.ResolveOrCreate(ctx, key, "")
			}(i)
		}
		wg.Wait()

		winners := 0
		for i := 0; i < workers; i++ {
			if errs[i] != nil {
				t.Fatalf("worker %d: %v", i, errs[i])
			}
			if ids[i] != ids[0] {
				t.Fatalf("worker %d resolved %s, want %s", i, ids[i], ids[0])
			}
			if created[i] {
				winners++
			}
		}
		if winners != 1 {
			t.Fatalf("created reported %d times, want 1", winners)
		}

		convs, err := s.ListConversations(ctx, "page-1", 50, 0)
		if err != nil {
			t.Fatalf("ListConversations: %v", err)
		}
		if len(convs) != 1 {
			t.Fatalf("conversations = %d, want 1", len(convs))
		}
		if convs[0].UnreadCount != 0 || !convs[0].Online || convs[0].Status != core.ConversationStatusActive {
			t.Errorf("defaults = %+v", convs[0])
		}
	})

	t.Run("UnreadCountsCustomersOnly", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		convID := mustConversation(t, s, "psid-1", "page-1")

		roles := []core.SenderRole{core.RoleCustomer, core.RoleBusiness, core.RoleCustomer, core.RoleSystem, core.RoleCustomer}
		for i, role := range roles {
			if err := s.RecordActivity(ctx, convID, fmt.Sprintf("msg %d", i), role, time.Now()); err != nil {
				t.Fatalf("RecordActivity: %v", err)
			}
		}

		conv, err := s.GetConversation(ctx, convID)
		if err != nil || conv == nil {
			t.Fatalf("GetConversation = %v, %v", conv, err)
		}
		if conv.UnreadCount != 3 {
			t.Errorf("UnreadCount = %d, want 3", conv.UnreadCount)
		}
		if conv.LastMessageText != "msg 4" || conv.LastSenderRole != core.RoleCustomer || conv.LastMessageAt == nil {
			t.Errorf("last message = %+v", conv)
		}

		err = s.RecordActivity(ctx, "missing", "x", core.RoleCustomer, time.Now())
		if !errors.Is(err, core.ErrConversationNotFound) {
			t.Errorf("unknown conversation err = %v", err)
		}
	})

	t.Run("MarkConversationRead", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		convID := mustConversation(t, s, "psid-1", "page-1")

		for i := 0; i < 2; i++ {
			_, _ = s.InsertInbound(ctx, core.InboundMessage{
				ConversationID: convID, Text: "hi", PlatformMessageID: fmt.Sprintf("m_%d", i),
				SenderRole: core.RoleCustomer, Timestamp: time.Now(),
			})
		}

		if err := s.MarkConversationRead(ctx, convID); err != nil {
			t.Fatalf("MarkConversationRead: %v", err)
		}
		conv, _ := s.GetConversation(ctx, convID)
		if conv.UnreadCount != 0 {
			t.Errorf("UnreadCount = %d, want 0", conv.UnreadCount)
		}
		msgs, _ := s.ListByConversation(ctx, convID, 50, 0)
		for _, m := range msgs {
			if !m.IsRead {
				t.Errorf("message %s not read", m.ID)
			}
		}

		if err := s.MarkConversationRead(ctx, "missing"); !errors.Is(err, core.ErrConversationNotFound) {
			t.Errorf("missing conversation err = %v", err)
		}
	})

	t.Run("UpdateDisplayNameOnlyWhenChanged", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		convID := mustConversation(t, s, "psid-1", "page-1")

		updated, err := s.UpdateDisplayName(ctx, "psid-1", "Ada")
		if err != nil || !updated {
			t.Fatalf("first update = %v, %v", updated, err)
		}
		updated, err = s.UpdateDisplayName(ctx, "psid-1", "Ada")
		if err != nil || updated {
			t.Fatalf("repeat update = %v, %v", updated, err)
		}
		conv, _ := s.GetConversation(ctx, convID)
		if conv.ParticipantName != "Ada" {
			t.Errorf("ParticipantName = %q", conv.ParticipantName)
		}
	})

	t.Run("ChronologicalListing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		convID := mustConversation(t, s, "psid-1", "page-1")

		base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		for _, offset := range []int{3, 1, 2, 0} {
			_, err := s.InsertInbound(ctx, core.InboundMessage{
				ConversationID: convID, Text: fmt.Sprintf("t%d", offset), PlatformMessageID: fmt.Sprintf("m_%d", offset),
				SenderRole: core.RoleCustomer, Timestamp: base.Add(time.Duration(offset) * time.Minute),
			})
			if err != nil {
				t.Fatalf("insert: %v", err)
			}
		}

		page1, _ := s.ListByConversation(ctx, convID, 2, 0)
		page2, _ := s.ListByConversation(ctx, convID, 2, 2)
		all := append(page1, page2...)
		for i, m := range all {
			if want := fmt.Sprintf("t%d", i); m.Content != want {
				t.Errorf("position %d = %q, want %q", i, m.Content, want)
			}
		}

		recent, _ := s.RecentMessages(ctx, convID, 2)
		if len(recent) != 2 || recent[0].Content != "t2" || recent[1].Content != "t3" {
			t.Errorf("recent = %+v", recent)
		}
	})

	t.Run("SetPlatformMessageIDGuards", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		convID := mustConversation(t, s, "psid-1", "page-1")

		outID, _ := s.InsertOutbound(ctx, convID, "reply", "", core.RoleBusiness)
		if err := s.SetPlatformMessageID(ctx, outID, "m_out"); err != nil {
			t.Fatalf("SetPlatformMessageID: %v", err)
		}
		// The echo of the same send is now a duplicate.
		res, err := s.InsertInbound(ctx, core.InboundMessage{
			ConversationID: convID, Text: "reply", PlatformMessageID: "m_out", SenderRole: core.RoleBusiness, Timestamp: time.Now(),
		})
		if err != nil || res.Status != core.AlreadyExists {
			t.Fatalf("echo insert = %+v, %v", res, err)
		}

		// An echo that arrives first keeps its id; the back-fill becomes a no-op.
		echo, _ := s.InsertInbound(ctx, core.InboundMessage{
			ConversationID: convID, Text: "second", PlatformMessageID: "m_out2", SenderRole: core.RoleBusiness, Timestamp: time.Now(),
		})
		late, _ := s.InsertOutbound(ctx, convID, "second", "", core.RoleBusiness)
		if err := s.SetPlatformMessageID(ctx, late, "m_out2"); err != nil {
			t.Fatalf("late SetPlatformMessageID: %v", err)
		}
		msgs, _ := s.ListByConversation(ctx, convID, 50, 0)
		claimed := 0
		for _, m := range msgs {
			if m.PlatformMessageID == "m_out2" {
				claimed++
				if m.ID != echo.MessageID {
					t.Errorf("m_out2 claimed by %s, want echo %s", m.ID, echo.MessageID)
				}
			}
		}
		if claimed != 1 {
			t.Errorf("m_out2 claimed %d times", claimed)
		}
	})

	t.Run("ChannelAdministration", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		temp := float32(0.3)
		err := s.UpsertChannel(ctx, core.ChannelConfig{
			ChannelID: "page-9", TenantID: "t1", Platform: core.PlatformMessenger, Name: "Shop",
			AccessToken: "tok", Active: true, WebhookEnabled: true, AutoReplyEnabled: true,
			SystemPrompt: "prompt", AITemperature: &temp,
		})
		if err != nil {
			t.Fatalf("UpsertChannel: %v", err)
		}

		ch, err := s.GetChannel(ctx, "page-9")
		if err != nil || ch == nil {
			t.Fatalf("GetChannel = %v, %v", ch, err)
		}
		if !ch.AcceptsEvents() || ch.SystemPrompt != "prompt" || ch.AITemperature == nil || *ch.AITemperature != 0.3 {
			t.Errorf("channel = %+v", ch)
		}

		ok, err := s.SetChannelActive(ctx, "page-9", false)
		if err != nil || !ok {
			t.Fatalf("SetChannelActive = %v, %v", ok, err)
		}
		ch, _ = s.GetChannel(ctx, "page-9")
		if ch.AcceptsEvents() {
			t.Error("deactivated channel still accepts events")
		}

		ok, _ = s.SetChannelActive(ctx, "page-missing", true)
		if ok {
			t.Error("SetChannelActive reported success for missing channel")
		}
		missing, err := s.GetChannel(ctx, "page-missing")
		if err != nil || missing != nil {
			t.Errorf("missing channel = %v, %v", missing, err)
		}

		all, err := s.LoadChannels(ctx)
		if err != nil || len(all) != 1 {
			t.Errorf("LoadChannels = %d, %v", len(all), err)
		}
	})
}

func mustConversation(t *testing.T, s core.Store, participantID, channelID string) string {
	t.Helper()
	id, _, err := s.ResolveOrCreate(context.Background(), core.ConversationKey{
		TenantID: "t1", ParticipantID: participantID, ChannelID: channelID, Platform: core.PlatformMessenger,
	}, "")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	return id
}
