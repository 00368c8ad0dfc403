package messaging

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/schoolmsg/internal/bus"
	"github.com/matheus3301/schoolmsg/internal/delivery"
	"github.com/matheus3301/schoolmsg/internal/notify"
	"go.uber.org/zap"
)

// mockBackend records calls and returns configurable results.
type mockBackend struct {
	mu sync.Mutex

	conversations []Conversation
	pages         map[string][]Message
	convErr       error
	msgErr        error
	sendErr       error
	flagErr       error
	reactionErr   error
	broadcastErr  error
	forwardErr    error
	forwarded     []string
	sendGate      chan struct{} // when set, SendMessage blocks until closed
	sendCalls     []SendRequest
	convCalls     []Filters
	sortCalls     []SortBy
	nextID        int
}

func newMockBackend() *mockBackend {
	return &mockBackend{pages: make(map[string][]Message)}
}

func (m *mockBackend) GetConversations(_ context.Context, f Filters, sort SortBy) ([]Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convCalls = append(m.convCalls, f)
	m.sortCalls = append(m.sortCalls, sort)
	if m.convErr != nil {
		return nil, m.convErr
	}
	out := make([]Conversation, len(m.conversations))
	copy(out, m.conversations)
	return out, nil
}

func (m *mockBackend) GetMessages(_ context.Context, id string, limit, offset int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.msgErr != nil {
		return nil, m.msgErr
	}
	page := m.pages[id]
	if offset >= len(page) {
		return nil, nil
	}
	end := min(offset+limit, len(page))
	out := make([]Message, end-offset)
	copy(out, page[offset:end])
	return out, nil
}

func (m *mockBackend) SendMessage(_ context.Context, req SendRequest) (Message, error) {
	if m.sendGate != nil {
		<-m.sendGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCalls = append(m.sendCalls, req)
	if m.sendErr != nil {
		return Message{}, m.sendErr
	}
	m.nextID++
	return Message{
		ID:             fmt.Sprintf("srv-%d", m.nextID),
		ConversationID: req.ConversationID,
		Sender:         Participant{ID: "t1", Name: "Ms. Rivera", Role: RoleTeacher},
		Content:        req.Content,
		Category:       req.Category,
		Priority:       req.Priority,
		Status:         delivery.Sent,
		Timestamp:      time.Now(),
	}, nil
}

func (m *mockBackend) SendBroadcast(_ context.Context, req BroadcastRequest) (BroadcastResult, error) {
	if m.broadcastErr != nil {
		return BroadcastResult{}, m.broadcastErr
	}
	return BroadcastResult{ID: "b1", Delivered: len(req.Recipients)}, nil
}

func (m *mockBackend) SetConversationFlag(context.Context, string, Flag, bool) error { return m.flagErr }
func (m *mockBackend) MarkAsRead(context.Context, string) error                     { return m.flagErr }
func (m *mockBackend) MarkAsUnread(context.Context, string) error                   { return m.flagErr }
func (m *mockBackend) AddReaction(context.Context, string, string) error            { return m.reactionErr }
func (m *mockBackend) RemoveReaction(context.Context, string, string) error         { return m.reactionErr }
func (m *mockBackend) PinMessage(context.Context, string, string) error             { return m.flagErr }
func (m *mockBackend) UnpinMessage(context.Context, string) error                   { return m.flagErr }

func (m *mockBackend) ForwardMessage(_ context.Context, messageID string, to []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forwardErr != nil {
		return m.forwardErr
	}
	m.forwarded = append(m.forwarded, messageID+"->"+fmt.Sprint(to))
	return nil
}

func (m *mockBackend) ScheduleMessage(_ context.Context, req SendRequest, at time.Time) (ScheduledMessage, error) {
	return ScheduledMessage{ID: "s1", Request: req, ScheduledAt: at}, nil
}
func (m *mockBackend) CancelScheduledMessage(context.Context, string) error { return nil }
func (m *mockBackend) GetScheduledMessages(context.Context) ([]ScheduledMessage, error) {
	return nil, nil
}

var teacher = Participant{ID: "t1", Name: "Ms. Rivera", Role: RoleTeacher}

func testStore(t *testing.T, be *mockBackend) (*Store, *bus.Bus) {
	t.Helper()
	b := bus.New()
	return NewStore(be, nil, b, teacher, zap.NewNop()), b
}

func seed(be *mockBackend) {
	be.conversations = []Conversation{
		{ID: "c1", Recipient: Participant{ID: "p1", Name: "Ana's parent", Role: RoleParent}, UnreadCount: 2},
		{ID: "c2", Recipient: Participant{ID: "p2", Name: "Ben's parent", Role: RoleParent}, UnreadCount: 3},
	}
	now := time.Now()
	be.pages["c1"] = []Message{
		{ID: "m1", ConversationID: "c1", Content: "hello", Status: delivery.Read, Timestamp: now.Add(-2 * time.Minute), Unread: true},
		{ID: "m2", ConversationID: "c1", Content: "is Ana sick?", Status: delivery.Delivered, Timestamp: now.Add(-time.Minute), Unread: true},
	}
}

func sumUnread(convs []Conversation) int {
	n := 0
	for _, c := range convs {
		n += c.UnreadCount
	}
	return n
}

func TestLoadConversationsRecomputesUnread(t *testing.T) {
	be := newMockBackend()
	seed(be)
	s, _ := testStore(t, be)

	if err := s.LoadConversations(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := s.UnreadCount(); got != 5 {
		t.Errorf("unread = %d, want 5", got)
	}
	if got := s.UnreadCount(); got != sumUnread(s.Conversations()) {
		t.Errorf("global %d != sum %d", got, sumUnread(s.Conversations()))
	}
}

func TestLoadConversationsFailureKeepsState(t *testing.T) {
	be := newMockBackend()
	seed(be)
	s, _ := testStore(t, be)
	if err := s.LoadConversations(context.Background()); err != nil {
		t.Fatal(err)
	}

	be.convErr = errors.New("backend down")
	if err := s.LoadConversations(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if n := len(s.Conversations()); n != 2 {
		t.Errorf("conversations = %d, want prior 2", n)
	}
	if s.Err() == "" {
		t.Error("error string not recorded")
	}
	if s.UnreadCount() != 5 {
		t.Errorf("unread = %d, want 5", s.UnreadCount())
	}
}

func TestLoadMessagesReplaceAndAppend(t *testing.T) {
	be := newMockBackend()
	seed(be)
	for i := 0; i < 60; i++ {
		be.pages["c2"] = append(be.pages["c2"], Message{ID: fmt.Sprintf("h%d", i), ConversationID: "c2"})
	}
	s, _ := testStore(t, be)
	ctx := context.Background()

	n, err := s.LoadMessages(ctx, "c2", 0)
	if err != nil || n != PageSize {
		t.Fatalf("first page = %d, %v; want %d", n, err, PageSize)
	}
	n, _ = s.LoadMessages(ctx, "c2", PageSize)
	if n != 60 {
		t.Errorf("after append = %d, want 60", n)
	}
	n, _ = s.LoadMessages(ctx, "c2", 2*PageSize)
	if n != 60 {
		t.Errorf("exhausted history should keep count, got %d", n)
	}
	n, _ = s.LoadMessages(ctx, "c2", 0)
	if n != PageSize {
		t.Errorf("offset 0 should replace, got %d", n)
	}
}

func TestSendMessageOptimisticThenConfirmed(t *testing.T) {
	be := newMockBackend()
	seed(be)
	be.sendGate = make(chan struct{})
	s, b := testStore(t, be)
	ctx := context.Background()
	if err := s.LoadConversations(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadMessages(ctx, "c1", 0); err != nil {
		t.Fatal(err)
	}
	acks, unsub := b.Subscribe(bus.KindMessageSendAck, 4)
	defer unsub()

	before := len(s.Messages("c1"))
	done := make(chan Message)
	go func() {
		m, err := s.SendMessage(ctx, SendRequest{ConversationID: "c1", Content: "Ana is excused today"})
		if err != nil {
			t.Error(err)
		}
		done <- m
	}()

	// The optimistic entry is visible before the backend answers.
	deadline := time.Now().Add(time.Second)
	for len(s.Messages("c1")) == before && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	msgs := s.Messages("c1")
	if len(msgs) != before+1 {
		t.Fatalf("messages = %d, want %d", len(msgs), before+1)
	}
	pending := msgs[len(msgs)-1]
	if pending.Status != delivery.Sending || !IsTempID(pending.ID) {
		t.Errorf("pending = %+v, want sending with temp id", pending)
	}
	if _, ok := pending.Origin.(Pending); !ok {
		t.Errorf("origin = %T, want Pending", pending.Origin)
	}

	close(be.sendGate)
	sent := <-done

	msgs = s.Messages("c1")
	if len(msgs) != before+1 {
		t.Fatalf("messages = %d after confirm, want %d", len(msgs), before+1)
	}
	last := msgs[len(msgs)-1]
	if last.ID != sent.ID || last.Status != delivery.Sent || last.Content != pending.Content {
		t.Errorf("confirmed = %+v", last)
	}
	if _, ok := last.Origin.(Confirmed); !ok {
		t.Errorf("origin = %T, want Confirmed", last.Origin)
	}
	select {
	case <-acks:
	case <-time.After(time.Second):
		t.Error("no send_ack event")
	}
}

func TestSendMessageFailureMarksFailed(t *testing.T) {
	be := newMockBackend()
	seed(be)
	be.sendErr = errors.New("timeout")
	s, _ := testStore(t, be)
	ctx := context.Background()
	if _, err := s.LoadMessages(ctx, "c1", 0); err != nil {
		t.Fatal(err)
	}
	before := len(s.Messages("c1"))

	if _, err := s.SendMessage(ctx, SendRequest{ConversationID: "c1", Content: "will fail"}); err == nil {
		t.Fatal("expected error")
	}

	msgs := s.Messages("c1")
	if len(msgs) != before+1 {
		t.Fatalf("messages = %d, want %d (failed entry retained once)", len(msgs), before+1)
	}
	last := msgs[len(msgs)-1]
	if last.Status != delivery.Failed {
		t.Errorf("status = %s, want failed", last.Status)
	}
	f, ok := last.Origin.(Failed)
	if !ok || f.Err != "timeout" || f.TempID != last.ID || f.Request.Content != "will fail" {
		t.Errorf("origin = %#v", last.Origin)
	}
}

func TestSendRefreshFailureDoesNotRollBack(t *testing.T) {
	be := newMockBackend()
	seed(be)
	s, _ := testStore(t, be)
	ctx := context.Background()
	if err := s.LoadConversations(ctx); err != nil {
		t.Fatal(err)
	}
	be.convErr = errors.New("list unavailable")

	m, err := s.SendMessage(ctx, SendRequest{ConversationID: "c1", Content: "hi"})
	if err != nil {
		t.Fatalf("send should succeed despite refresh failure: %v", err)
	}
	got, ok := s.Message(m.ID)
	if !ok || got.Status != delivery.Sent {
		t.Errorf("message = %+v, %v", got, ok)
	}
}

func TestSendMessageValidation(t *testing.T) {
	s, _ := testStore(t, newMockBackend())
	_, err := s.SendMessage(context.Background(), SendRequest{Content: "no conversation"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("error = %v, want ErrInvalidRequest", err)
	}
}

func TestRetryAndDiscard(t *testing.T) {
	be := newMockBackend()
	seed(be)
	be.sendErr = errors.New("offline")
	s, _ := testStore(t, be)
	ctx := context.Background()
	if err := s.LoadConversations(ctx); err != nil {
		t.Fatal(err)
	}

	req := SendRequest{ConversationID: "c1", Content: "retry me", TemplateID: "absence"}
	if _, err := s.SendMessage(ctx, req); err == nil {
		t.Fatal("expected error")
	}
	failed := s.Messages("c1")[0]

	// A retry that fails again keeps exactly one failed copy of the message.
	if _, err := s.RetryMessage(ctx, failed.ID); err == nil {
		t.Fatal("expected error")
	}
	msgs := s.Messages("c1")
	if len(msgs) != 1 || msgs[0].Status != delivery.Failed || msgs[0].Content != "retry me" {
		t.Fatalf("messages after failed retry = %+v", msgs)
	}
	if msgs[0].ID == failed.ID {
		t.Error("retry should be a new send with a new temp id")
	}

	be.sendErr = nil
	m, err := s.RetryMessage(ctx, msgs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	msgs = s.Messages("c1")
	if len(msgs) != 1 || msgs[0].ID != m.ID || msgs[0].Status != delivery.Sent {
		t.Errorf("messages after retry = %+v", msgs)
	}
	last := be.sendCalls[len(be.sendCalls)-1]
	if last.Recipient.ID != "p1" || last.TemplateID != "absence" || last.Content != "retry me" {
		t.Errorf("retried request = %+v", last)
	}
	if err := s.DiscardMessage(m.ID); !errors.Is(err, ErrNotFailed) {
		t.Errorf("discarding a sent message: %v, want ErrNotFailed", err)
	}
}

func TestRetryFillsRecipientFromConversation(t *testing.T) {
	be := newMockBackend()
	seed(be)
	s, _ := testStore(t, be)
	ctx := context.Background()
	if err := s.LoadConversations(ctx); err != nil {
		t.Fatal(err)
	}
	// An entry without a recorded request, as left by an older page.
	s.mu.Lock()
	s.messages["c2"] = []Message{{
		ID: "tmp-old", ConversationID: "c2", Content: "see you at 3", Status: delivery.Failed,
		Origin: Failed{TempID: "tmp-old", Err: "offline"},
	}}
	s.mu.Unlock()

	if _, err := s.RetryMessage(ctx, "tmp-old"); err != nil {
		t.Fatal(err)
	}
	if got := be.sendCalls[0]; got.Recipient.ID != "p2" || got.ConversationID != "c2" {
		t.Errorf("request = %+v", got)
	}
	if _, ok := s.Message("tmp-old"); ok {
		t.Error("failed entry should be replaced by the new send")
	}
}

func TestRetryLeavesFailedEntryOnInvalidRequest(t *testing.T) {
	s, _ := testStore(t, newMockBackend())
	s.mu.Lock()
	s.messages["c1"] = []Message{{
		ID: "tmp-empty", ConversationID: "c1", Status: delivery.Failed,
		Origin: Failed{TempID: "tmp-empty", Err: "offline"},
	}}
	s.mu.Unlock()

	if _, err := s.RetryMessage(context.Background(), "tmp-empty"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("error = %v, want ErrInvalidRequest", err)
	}
	if _, ok := s.Message("tmp-empty"); !ok {
		t.Error("failed entry removed by a retry that never sent")
	}
}

// waitForPending blocks until the conversation holds a sending entry.
func waitForPending(t *testing.T, s *Store, conversationID string) Message {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, m := range s.Messages(conversationID) {
			if _, ok := m.Origin.(Pending); ok {
				return m
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no pending entry")
	return Message{}
}

func TestFailedSendSurvivesPageReload(t *testing.T) {
	be := newMockBackend()
	seed(be)
	be.sendGate = make(chan struct{})
	be.sendErr = errors.New("timeout")
	s, _ := testStore(t, be)
	ctx := context.Background()
	if _, err := s.LoadMessages(ctx, "c1", 0); err != nil {
		t.Fatal(err)
	}

	done := make(chan error)
	go func() {
		_, err := s.SendMessage(ctx, SendRequest{ConversationID: "c1", Content: "field trip form"})
		done <- err
	}()
	waitForPending(t, s, "c1")

	n, err := s.LoadMessages(ctx, "c1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("count after reload = %d, want 3 (pending kept)", n)
	}

	close(be.sendGate)
	if err := <-done; err == nil {
		t.Fatal("expected send error")
	}
	msgs := s.Messages("c1")
	failed := 0
	for _, m := range msgs {
		if m.Status == delivery.Failed {
			failed++
		}
	}
	if len(msgs) != 3 || failed != 1 {
		t.Errorf("messages = %d, failed = %d; want 3 and 1", len(msgs), failed)
	}

	// A later reload keeps the failed entry too.
	if n, _ := s.LoadMessages(ctx, "c1", 0); n != 3 {
		t.Errorf("count after second reload = %d, want 3", n)
	}
}

func TestOwnMessageArrivingBeforeAck(t *testing.T) {
	tests := []struct {
		name   string
		arrive func(t *testing.T, s *Store, be *mockBackend, echo Message)
	}{
		{"realtime push", func(t *testing.T, s *Store, _ *mockBackend, echo Message) {
			s.ReceiveMessage(echo)
		}},
		{"page reload", func(t *testing.T, s *Store, be *mockBackend, echo Message) {
			be.mu.Lock()
			be.pages["c1"] = append(be.pages["c1"], echo)
			be.mu.Unlock()
			if _, err := s.LoadMessages(context.Background(), "c1", 0); err != nil {
				t.Fatal(err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := newMockBackend()
			seed(be)
			be.sendGate = make(chan struct{})
			s, _ := testStore(t, be)
			ctx := context.Background()
			if _, err := s.LoadMessages(ctx, "c1", 0); err != nil {
				t.Fatal(err)
			}
			before := len(s.Messages("c1"))

			done := make(chan Message)
			go func() {
				m, err := s.SendMessage(ctx, SendRequest{ConversationID: "c1", Content: "bus is late"})
				if err != nil {
					t.Error(err)
				}
				done <- m
			}()
			waitForPending(t, s, "c1")

			// The mock hands out srv-1 for the first send.
			tt.arrive(t, s, be, Message{ID: "srv-1", ConversationID: "c1", Sender: teacher, Content: "bus is late", Status: delivery.Sent})

			close(be.sendGate)
			sent := <-done

			msgs := s.Messages("c1")
			if len(msgs) != before+1 {
				t.Fatalf("messages = %d, want %d", len(msgs), before+1)
			}
			seen := map[string]int{}
			for _, m := range msgs {
				seen[m.ID]++
				if IsTempID(m.ID) {
					t.Errorf("temp entry %s left behind", m.ID)
				}
			}
			if seen[sent.ID] != 1 {
				t.Errorf("confirmed id %s appears %d times", sent.ID, seen[sent.ID])
			}
		})
	}
}

func TestFlagMutationIsNotOptimistic(t *testing.T) {
	be := newMockBackend()
	seed(be)
	s, b := testStore(t, be)
	ctx := context.Background()
	if err := s.LoadConversations(ctx); err != nil {
		t.Fatal(err)
	}
	ch, unsub := b.Subscribe("conversation.updated", 4)
	defer unsub()

	if err := s.PinConversation(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	c, _ := s.Conversation("c1")
	if !c.Flags.Pinned {
		t.Error("c1 should be pinned")
	}
	<-ch

	be.flagErr = errors.New("forbidden")
	if err := s.ArchiveConversation(ctx, "c1"); err == nil {
		t.Fatal("expected error")
	}
	c, _ = s.Conversation("c1")
	if c.Flags.Archived {
		t.Error("flag flipped despite backend failure")
	}
	other, _ := s.Conversation("c2")
	if other.Flags != (Flags{}) {
		t.Errorf("c2 flags changed: %+v", other.Flags)
	}
}

func TestAllFlagMutations(t *testing.T) {
	be := newMockBackend()
	seed(be)
	s, _ := testStore(t, be)
	ctx := context.Background()
	if err := s.LoadConversations(ctx); err != nil {
		t.Fatal(err)
	}
	steps := []struct {
		name string
		fn   func(context.Context, string) error
		want Flags
	}{
		{"star", s.StarConversation, Flags{Starred: true}},
		{"mute", s.MuteConversation, Flags{Starred: true, Muted: true}},
		{"resolve", s.ResolveConversation, Flags{Starred: true, Muted: true, Resolved: true}},
		{"archive", s.ArchiveConversation, Flags{Starred: true, Muted: true, Resolved: true, Archived: true}},
		{"unarchive", s.UnarchiveConversation, Flags{Starred: true, Muted: true, Resolved: true}},
		{"unresolve", s.UnresolveConversation, Flags{Starred: true, Muted: true}},
		{"unmute", s.UnmuteConversation, Flags{Starred: true}},
		{"unstar", s.UnstarConversation, Flags{}},
		{"pin", s.PinConversation, Flags{Pinned: true}},
		{"unpin", s.UnpinConversation, Flags{}},
	}
	for _, st := range steps {
		if err := st.fn(ctx, "c2"); err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
		c, _ := s.Conversation("c2")
		if c.Flags != st.want {
			t.Errorf("after %s flags = %+v, want %+v", st.name, c.Flags, st.want)
		}
	}
}

func TestMarkReadUnreadKeepsGlobalSum(t *testing.T) {
	be := newMockBackend()
	seed(be)
	s, _ := testStore(t, be)
	ctx := context.Background()
	if err := s.LoadConversations(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadMessages(ctx, "c1", 0); err != nil {
		t.Fatal(err)
	}
	check := func(step string) {
		t.Helper()
		if got, want := s.UnreadCount(), sumUnread(s.Conversations()); got != want {
			t.Errorf("%s: global %d != sum %d", step, got, want)
		}
		for _, c := range s.Conversations() {
			if msgs := s.Messages(c.ID); msgs != nil && countUnread(msgs) != c.UnreadCount {
				t.Errorf("%s: %s unread %d != flagged %d", step, c.ID, c.UnreadCount, countUnread(msgs))
			}
		}
	}
	check("load")

	if err := s.MarkAsRead(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	check("read c1")
	if s.UnreadCount() != 3 {
		t.Errorf("unread = %d, want 3", s.UnreadCount())
	}

	if err := s.MarkAsUnread(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	check("unread c1")
	if err := s.MarkAsRead(ctx, "c2"); err != nil {
		t.Fatal(err)
	}
	check("read c2")
	if s.UnreadCount() != 1 {
		t.Errorf("unread = %d, want 1", s.UnreadCount())
	}
}

func TestAddReactionRollsBackOnFailure(t *testing.T) {
	be := newMockBackend()
	seed(be)
	be.pages["c1"][0].Reactions = []Reaction{{Type: "heart", UserID: "p1"}}
	s, _ := testStore(t, be)
	ctx := context.Background()
	if _, err := s.LoadMessages(ctx, "c1", 0); err != nil {
		t.Fatal(err)
	}
	before, _ := s.Message("m1")

	be.reactionErr = errors.New("rate limited")
	if err := s.AddReaction(ctx, "m1", "thumbs_up"); err == nil {
		t.Fatal("expected error")
	}
	after, _ := s.Message("m1")
	if !reflect.DeepEqual(before.Reactions, after.Reactions) {
		t.Errorf("reactions = %+v, want %+v", after.Reactions, before.Reactions)
	}
}

func TestAddExistingReactionFailureKeepsIt(t *testing.T) {
	be := newMockBackend()
	seed(be)
	be.pages["c1"][0].Reactions = []Reaction{{Type: "like", UserID: teacher.ID}}
	s, _ := testStore(t, be)
	ctx := context.Background()
	if _, err := s.LoadMessages(ctx, "c1", 0); err != nil {
		t.Fatal(err)
	}
	before, _ := s.Message("m1")

	be.reactionErr = errors.New("rate limited")
	_ = s.AddReaction(ctx, "m1", "like")
	if err := s.AddReaction(ctx, "m1", "heart"); err == nil {
		t.Fatal("expected error")
	}
	after, _ := s.Message("m1")
	if !reflect.DeepEqual(before.Reactions, after.Reactions) {
		t.Errorf("reactions = %+v, want %+v", after.Reactions, before.Reactions)
	}
}

func TestAddReactionSuccess(t *testing.T) {
	be := newMockBackend()
	seed(be)
	s, _ := testStore(t, be)
	ctx := context.Background()
	if _, err := s.LoadMessages(ctx, "c1", 0); err != nil {
		t.Fatal(err)
	}
	if err := s.AddReaction(ctx, "m2", "thumbs_up"); err != nil {
		t.Fatal(err)
	}
	m, _ := s.Message("m2")
	if len(m.Reactions) != 1 || m.Reactions[0].UserID != teacher.ID {
		t.Errorf("reactions = %+v", m.Reactions)
	}
}

// Removal is optimistic with no rollback.
func TestRemoveReactionHasNoRollback(t *testing.T) {
	be := newMockBackend()
	seed(be)
	be.pages["c1"][0].Reactions = []Reaction{{Type: "heart", UserID: teacher.ID}}
	s, _ := testStore(t, be)
	ctx := context.Background()
	if _, err := s.LoadMessages(ctx, "c1", 0); err != nil {
		t.Fatal(err)
	}
	be.reactionErr = errors.New("boom")
	if err := s.RemoveReaction(ctx, "m1", "heart"); err == nil {
		t.Fatal("expected error")
	}
	m, _ := s.Message("m1")
	if len(m.Reactions) != 0 {
		t.Errorf("reactions = %+v, want removal kept", m.Reactions)
	}
}

func TestPinScopedUnpinGlobal(t *testing.T) {
	be := newMockBackend()
	seed(be)
	// Same id present in two conversations exposes the scan asymmetry.
	be.pages["c2"] = []Message{{ID: "m1", ConversationID: "c2"}}
	s, _ := testStore(t, be)
	ctx := context.Background()
	for _, id := range []string{"c1", "c2"} {
		if _, err := s.LoadMessages(ctx, id, 0); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.PinMessage(ctx, "c1", "m1"); err != nil {
		t.Fatal(err)
	}
	if !s.Messages("c1")[0].Pinned || s.Messages("c2")[0].Pinned {
		t.Error("pin should only touch c1")
	}

	if err := s.PinMessage(ctx, "c2", "m1"); err != nil {
		t.Fatal(err)
	}
	if err := s.UnpinMessage(ctx, "m1"); err != nil {
		t.Fatal(err)
	}
	if s.Messages("c1")[0].Pinned || s.Messages("c2")[0].Pinned {
		t.Error("unpin should clear every conversation")
	}
}

func TestSearchAndFiltersReload(t *testing.T) {
	be := newMockBackend()
	seed(be)
	s, _ := testStore(t, be)
	ctx := context.Background()

	if err := s.SearchConversations(ctx, "ana"); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyFilters(ctx, Filters{Unread: true, Role: RoleParent}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSortBy(ctx, SortUnread); err != nil {
		t.Fatal(err)
	}
	if err := s.ClearFilters(ctx); err != nil {
		t.Fatal(err)
	}

	if len(be.convCalls) != 4 {
		t.Fatalf("backend loads = %d, want 4", len(be.convCalls))
	}
	if be.convCalls[0].Query != "ana" {
		t.Errorf("search query = %q", be.convCalls[0].Query)
	}
	if f := be.convCalls[1]; !f.Unread || f.Query != "ana" {
		t.Errorf("filters = %+v, want unread with query kept", f)
	}
	if be.sortCalls[2] != SortUnread {
		t.Errorf("sort = %s", be.sortCalls[2])
	}
	if be.convCalls[3] != (Filters{}) {
		t.Errorf("cleared filters = %+v", be.convCalls[3])
	}
}

func TestSendBroadcastRaisesOneNotification(t *testing.T) {
	be := newMockBackend()
	s, b := testStore(t, be)
	ch, unsub := b.Subscribe("notification.", 4)
	defer unsub()

	req := BroadcastRequest{
		Recipients: []Participant{{ID: "p1"}, {ID: "p2"}},
		Content:    "School closed tomorrow",
		Priority:   notify.PriorityUrgent,
	}
	if _, err := s.SendBroadcast(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	select {
	case evt := <-ch:
		n := evt.Payload.(notify.Notification)
		if n.Type != notify.TypeBroadcast || n.Priority != notify.PriorityUrgent {
			t.Errorf("notification = %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected second event %v", evt)
	case <-time.After(50 * time.Millisecond):
	}

	be.broadcastErr = errors.New("partial outage")
	if _, err := s.SendBroadcast(context.Background(), req); err == nil {
		t.Error("expected error")
	}
	select {
	case evt := <-ch:
		t.Errorf("failed broadcast raised %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnreadCountWithPartialHistory(t *testing.T) {
	be := newMockBackend()
	seed(be)
	be.conversations = append(be.conversations, Conversation{
		ID: "c3", Recipient: Participant{ID: "p3", Role: RoleParent}, UnreadCount: 80,
	})
	for i := 0; i < 80; i++ {
		be.pages["c3"] = append(be.pages["c3"], Message{ID: fmt.Sprintf("u%d", i), ConversationID: "c3", Unread: true})
	}
	s, _ := testStore(t, be)
	ctx := context.Background()
	if err := s.LoadConversations(ctx); err != nil {
		t.Fatal(err)
	}
	check := func(step string, want int) {
		t.Helper()
		c, _ := s.Conversation("c3")
		if c.UnreadCount != want {
			t.Errorf("%s: c3 unread = %d, want %d", step, c.UnreadCount, want)
		}
		if got := s.UnreadCount(); got != sumUnread(s.Conversations()) {
			t.Errorf("%s: global %d != sum %d", step, got, sumUnread(s.Conversations()))
		}
	}
	check("list", 80)

	if _, err := s.LoadMessages(ctx, "c3", 0); err != nil {
		t.Fatal(err)
	}
	check("first page", 80)

	s.ReceiveMessage(Message{ID: "u80", ConversationID: "c3", Sender: Participant{ID: "p3"}})
	check("pushed", 81)

	if _, err := s.LoadMessages(ctx, "c3", PageSize); err != nil {
		t.Fatal(err)
	}
	// Whole history is loaded now: 80 from the backend plus the pushed one.
	check("full history", 81)

	if err := s.MarkAsRead(ctx, "c3"); err != nil {
		t.Fatal(err)
	}
	check("read", 0)
}

func TestReceiveMessage(t *testing.T) {
	be := newMockBackend()
	seed(be)
	s, b := testStore(t, be)
	ctx := context.Background()
	if err := s.LoadConversations(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadMessages(ctx, "c1", 0); err != nil {
		t.Fatal(err)
	}
	ch, unsub := b.Subscribe("notification.", 4)
	defer unsub()

	s.ReceiveMessage(Message{ID: "m9", ConversationID: "c1", Sender: Participant{ID: "p1", Name: "Ana's parent"}, Content: "thanks", Status: delivery.Delivered})
	s.ReceiveMessage(Message{ID: "m9", ConversationID: "c1"}) // duplicate is ignored

	if n := len(s.Messages("c1")); n != 3 {
		t.Errorf("messages = %d, want 3", n)
	}
	c, _ := s.Conversation("c1")
	if c.UnreadCount != 3 || c.LastMessage == nil || c.LastMessage.Content != "thanks" {
		t.Errorf("conversation = %+v", c)
	}
	if s.UnreadCount() != 6 {
		t.Errorf("global unread = %d, want 6", s.UnreadCount())
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification for incoming message")
	}

	if err := s.MuteConversation(ctx, "c2"); err != nil {
		t.Fatal(err)
	}
	s.ReceiveMessage(Message{ID: "x1", ConversationID: "c2", Sender: Participant{ID: "p2"}})
	select {
	case evt := <-ch:
		t.Errorf("muted conversation raised %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestApplyStatusUpdate(t *testing.T) {
	be := newMockBackend()
	seed(be)
	s, _ := testStore(t, be)
	ctx := context.Background()
	m, err := s.SendMessage(ctx, SendRequest{ConversationID: "c1", Content: "x"})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.ApplyStatusUpdate(m.ID, delivery.Delivered); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyStatusUpdate(m.ID, delivery.Sent); err == nil {
		t.Error("delivered -> sent should be rejected")
	}
	if err := s.ApplyStatusUpdate(m.ID, delivery.Read); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Message(m.ID)
	if got.Status != delivery.Read {
		t.Errorf("status = %s, want read", got.Status)
	}
	if err := s.ApplyStatusUpdate("nope", delivery.Read); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("error = %v, want ErrMessageNotFound", err)
	}
}

func TestScheduledMessages(t *testing.T) {
	s, _ := testStore(t, newMockBackend())
	ctx := context.Background()
	req := SendRequest{ConversationID: "c1", Content: "Reminder: picture day"}

	if _, err := s.ScheduleMessage(ctx, req, time.Now().Add(-time.Hour)); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("past schedule error = %v", err)
	}
	sm, err := s.ScheduleMessage(ctx, req, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Scheduled()) != 1 || len(s.Messages("c1")) != 0 {
		t.Error("scheduled messages must be held apart from live messages")
	}
	if err := s.CancelScheduledMessage(ctx, sm.ID); err != nil {
		t.Fatal(err)
	}
	if len(s.Scheduled()) != 0 {
		t.Error("scheduled message not removed")
	}
}

func TestForwardMessage(t *testing.T) {
	be := newMockBackend()
	seed(be)
	s, _ := testStore(t, be)
	ctx := context.Background()
	if err := s.LoadConversations(ctx); err != nil {
		t.Fatal(err)
	}
	calls := len(be.convCalls)

	if err := s.ForwardMessage(ctx, "m1", []string{"c2"}); err != nil {
		t.Fatal(err)
	}
	if len(be.forwarded) != 1 || be.forwarded[0] != "m1->[c2]" {
		t.Errorf("forwarded = %v", be.forwarded)
	}
	if len(be.convCalls) != calls+1 {
		t.Error("forward should refresh the conversation list")
	}

	be.forwardErr = errors.New("recipient left the school")
	if err := s.ForwardMessage(ctx, "m1", []string{"c2"}); err == nil {
		t.Fatal("expected error")
	}
	if s.Err() == "" {
		t.Error("forward failure should be recorded")
	}
}

type recordingEmitter struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingEmitter) EmitTyping(_ context.Context, conversationID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, conversationID+"/"+userID)
	return nil
}

func (r *recordingEmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestEmitTypingDebounced(t *testing.T) {
	em := &recordingEmitter{}
	s := NewStore(newMockBackend(), em, bus.New(), teacher, zap.NewNop())

	for i := 0; i < 10; i++ {
		s.EmitTyping("c1")
		time.Sleep(10 * time.Millisecond)
	}
	s.EmitTyping("c2")
	if em.count() != 0 {
		t.Errorf("emitted %d times while keystrokes were still coming", em.count())
	}

	time.Sleep(TypingEmitDelay + 200*time.Millisecond)
	em.mu.Lock()
	calls := slices.Clone(em.calls)
	em.mu.Unlock()
	slices.Sort(calls)
	want := []string{"c1/t1", "c2/t1"}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("emissions = %v, want %v", calls, want)
	}
}

func TestTypingExpires(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for typing TTL")
	}
	em := &recordingEmitter{}
	s := NewStore(newMockBackend(), em, bus.New(), teacher, zap.NewNop())

	s.EmitTyping("c1")
	s.SetRemoteTyping("c1", "p1")
	s.SetRemoteTyping("c1", teacher.ID) // own echo is ignored

	if !s.LocalTyping("c1") || !s.IsTyping("c1") {
		t.Fatal("typing markers should be live")
	}
	if got := s.TypingIndicators(); len(got) != 1 || got[0].UserID != "p1" {
		t.Errorf("indicators = %+v", got)
	}

	// A refresh halfway through pushes expiry out.
	time.Sleep(TypingTTL / 2)
	s.SetRemoteTyping("c1", "p1")
	time.Sleep(TypingTTL/2 + 300*time.Millisecond)
	if !s.IsTyping("c1") {
		t.Error("refreshed remote marker expired early")
	}
	if s.LocalTyping("c1") {
		t.Error("local marker should have expired")
	}

	time.Sleep(TypingTTL / 2)
	if s.IsTyping("c1") {
		t.Error("remote marker should have expired")
	}

	deadline := time.Now().Add(time.Second)
	for em.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if em.count() != 1 {
		t.Errorf("emitter calls = %d, want 1", em.count())
	}
}
