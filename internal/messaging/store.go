package messaging

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/matheus3301/schoolmsg/internal/bus"
	"github.com/matheus3301/schoolmsg/internal/schedule"
	"go.uber.org/zap"
)

// PageSize is the number of messages fetched per history page.
const PageSize = 50

var validate = validator.New()

// Store is the single source of truth for conversation and message state.
// All mutation goes through its methods; each method applies its local
// read-modify-write under the lock and never holds it across a backend call.
type Store struct {
	mu sync.RWMutex

	backend Backend
	typing  TypingEmitter
	bus     *bus.Bus
	logger  *zap.Logger
	self    Participant

	conversations []Conversation
	messages      map[string][]Message
	fullHistory   map[string]bool // every message of the conversation is loaded
	unreadTotal   int
	selectedID    string
	filters       Filters
	sortBy        SortBy
	scheduled     []ScheduledMessage
	lastErr       string
	loading       bool

	localTyping  map[string]*typingEntry
	remoteTyping map[string]*typingEntry
	typingEmit   map[string]*schedule.Debouncer

	refreshCh chan struct{}
}

type typingEntry struct {
	indicator TypingIndicator
	expiry    *schedule.Handle
}

// NewStore creates a store for the signed-in user self. typing may be nil.
func NewStore(backend Backend, typing TypingEmitter, b *bus.Bus, self Participant, logger *zap.Logger) *Store {
	return &Store{
		backend:      backend,
		typing:       typing,
		bus:          b,
		logger:       logger,
		self:         self,
		messages:     make(map[string][]Message),
		fullHistory:  make(map[string]bool),
		sortBy:       SortRecent,
		localTyping:  make(map[string]*typingEntry),
		remoteTyping: make(map[string]*typingEntry),
		typingEmit:   make(map[string]*schedule.Debouncer),
		refreshCh:    make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals a state change to the UI.
func (s *Store) RefreshCh() <-chan struct{} {
	return s.refreshCh
}

func (s *Store) signalRefresh() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

func (s *Store) publish(kind string, payload any) {
	s.bus.Publish(bus.NewEvent(kind, payload))
	s.signalRefresh()
}

// fail records a human-readable error and returns err wrapped with op.
func (s *Store) fail(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	s.mu.Lock()
	s.lastErr = wrapped.Error()
	s.mu.Unlock()
	s.logger.Warn("store action failed", zap.String("op", op), zap.Error(err))
	s.signalRefresh()
	return wrapped
}

// Err returns the last recorded error message, or "".
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// ClearErr resets the recorded error.
func (s *Store) ClearErr() {
	s.mu.Lock()
	s.lastErr = ""
	s.mu.Unlock()
}

// Self returns the signed-in participant.
func (s *Store) Self() Participant {
	return s.self
}

// Loading reports whether a conversation load is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// LoadConversations replaces the list using the current filters and sort.
// On failure the previous list is kept untouched.
func (s *Store) LoadConversations(ctx context.Context) error {
	s.mu.Lock()
	filters, sortBy := s.filters, s.sortBy
	s.loading = true
	s.mu.Unlock()

	convs, err := s.backend.GetConversations(ctx, filters, sortBy)

	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
	if err != nil {
		return s.fail("load conversations", err)
	}

	s.mu.Lock()
	s.conversations = convs
	s.recountLocked()
	s.lastErr = ""
	s.mu.Unlock()

	s.publish(bus.KindConversationsLoaded, len(convs))
	return nil
}

// refreshConversations is the best-effort reload after a send. Failure is
// logged and never touches message state.
func (s *Store) refreshConversations(ctx context.Context) {
	s.mu.RLock()
	filters, sortBy := s.filters, s.sortBy
	s.mu.RUnlock()

	convs, err := s.backend.GetConversations(ctx, filters, sortBy)
	if err != nil {
		s.logger.Warn("conversation refresh after send failed", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.conversations = convs
	s.recountLocked()
	s.mu.Unlock()
	s.publish(bus.KindConversationsLoaded, len(convs))
}

// LoadMessages fetches one page of history. Offset 0 replaces the page,
// any other offset appends. Entries that exist only locally (sending or
// failed) survive a replace. It returns the resulting message count; a count
// equal to the previous one means history is exhausted.
func (s *Store) LoadMessages(ctx context.Context, conversationID string, offset int) (int, error) {
	msgs, err := s.backend.GetMessages(ctx, conversationID, PageSize, offset)
	if err != nil {
		return s.MessageCount(conversationID), s.fail("load messages", err)
	}
	pageLen := len(msgs)
	for i := range msgs {
		msgs[i].Origin = Confirmed{ID: msgs[i].ID}
	}

	s.mu.Lock()
	existing := s.messages[conversationID]
	if offset == 0 {
		for _, m := range existing {
			if isLocal(m) {
				msgs = append(msgs, m)
			}
		}
		s.messages[conversationID] = msgs
		s.fullHistory[conversationID] = false
	} else {
		for _, m := range msgs {
			if !slices.ContainsFunc(existing, func(e Message) bool { return e.ID == m.ID }) {
				existing = append(existing, m)
			}
		}
		s.messages[conversationID] = existing
	}
	if pageLen < PageSize {
		s.fullHistory[conversationID] = true
	}
	s.syncUnreadLocked(conversationID)
	s.recountLocked()
	count := len(s.messages[conversationID])
	s.mu.Unlock()

	s.publish(bus.KindMessageUpserted, conversationID)
	return count, nil
}

// Conversations returns a snapshot of the conversation list.
func (s *Store) Conversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.conversations)
}

// Conversation returns one conversation by id.
func (s *Store) Conversation(id string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.convIndexLocked(id)
	if idx < 0 {
		return Conversation{}, false
	}
	return s.conversations[idx], true
}

// Messages returns a snapshot of a conversation's loaded messages.
func (s *Store) Messages(conversationID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.messages[conversationID])
}

// MessageCount returns how many messages are loaded for a conversation.
func (s *Store) MessageCount(conversationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[conversationID])
}

// Message finds a loaded message by id in any conversation.
func (s *Store) Message(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, msgs := range s.messages {
		for _, m := range msgs {
			if m.ID == id {
				return cloneMessage(m), true
			}
		}
	}
	return Message{}, false
}

// UnreadCount is the global unread counter: the sum over all conversations.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadTotal
}

// SelectConversation marks a conversation as the one on screen.
func (s *Store) SelectConversation(id string) {
	s.mu.Lock()
	s.selectedID = id
	s.mu.Unlock()
	s.signalRefresh()
}

// Selected returns the selected conversation id.
func (s *Store) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedID
}

func (s *Store) convIndexLocked(id string) int {
	return slices.IndexFunc(s.conversations, func(c Conversation) bool { return c.ID == id })
}

func (s *Store) recountLocked() {
	total := 0
	for _, c := range s.conversations {
		total += c.UnreadCount
	}
	s.unreadTotal = total
}

// syncUnreadLocked reconciles a conversation's unread count with its loaded
// messages. With the whole history loaded the unread flags are the count;
// otherwise the backend's count stands unless the loaded pages alone show
// more.
func (s *Store) syncUnreadLocked(conversationID string) {
	idx := s.convIndexLocked(conversationID)
	if idx < 0 {
		return
	}
	c := &s.conversations[idx]
	if n := countUnread(s.messages[conversationID]); s.fullHistory[conversationID] || n > c.UnreadCount {
		c.UnreadCount = n
	}
}

func countUnread(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		if m.Unread {
			n++
		}
	}
	return n
}

func cloneMessage(m Message) Message {
	m.Attachments = slices.Clone(m.Attachments)
	m.Reactions = slices.Clone(m.Reactions)
	return m
}

func cloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = cloneMessage(m)
	}
	return out
}
