package messaging

import (
	"context"
	"time"

	"github.com/matheus3301/schoolmsg/internal/bus"
	"github.com/matheus3301/schoolmsg/internal/schedule"
	"go.uber.org/zap"
)

// TypingTTL is how long a typing marker lives without a fresh event.
const TypingTTL = 3 * time.Second

// TypingEmitDelay is the pause after the last keystroke before the typing
// event goes out.
const TypingEmitDelay = 300 * time.Millisecond

// EmitTyping announces local typing without waiting for any acknowledgement.
// Each call cancels the pending emission for the conversation and schedules
// a fresh one, and restarts the local marker's expiry.
func (s *Store) EmitTyping(conversationID string) {
	s.mu.Lock()
	s.touchTypingLocked(s.localTyping, conversationID, s.self.ID)
	var d *schedule.Debouncer
	if s.typing != nil {
		d = s.typingEmit[conversationID]
		if d == nil {
			d = schedule.NewDebouncer(TypingEmitDelay, func() { s.sendTyping(conversationID) })
			s.typingEmit[conversationID] = d
		}
	}
	s.mu.Unlock()

	if d != nil {
		d.Trigger()
	}
}

func (s *Store) sendTyping(conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), TypingTTL)
	defer cancel()
	if err := s.typing.EmitTyping(ctx, conversationID, s.self.ID); err != nil {
		s.logger.Debug("typing emission failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
}

// SetRemoteTyping records that another participant is typing.
func (s *Store) SetRemoteTyping(conversationID, userID string) {
	if userID == s.self.ID {
		return
	}
	s.mu.Lock()
	s.touchTypingLocked(s.remoteTyping, conversationID, userID)
	s.mu.Unlock()
	s.publish(bus.KindTypingChanged, conversationID)
}

// IsTyping reports whether someone else is typing in the conversation.
func (s *Store) IsTyping(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.remoteTyping[conversationID]
	return ok
}

// LocalTyping reports whether the local user's typing marker is live.
func (s *Store) LocalTyping(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.localTyping[conversationID]
	return ok
}

// TypingIndicators returns the live remote indicators.
func (s *Store) TypingIndicators() []TypingIndicator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TypingIndicator, 0, len(s.remoteTyping))
	for _, e := range s.remoteTyping {
		out = append(out, e.indicator)
	}
	return out
}

func (s *Store) touchTypingLocked(m map[string]*typingEntry, conversationID, userID string) {
	if prev, ok := m[conversationID]; ok {
		prev.expiry.Cancel()
	}
	entry := &typingEntry{indicator: TypingIndicator{
		ConversationID: conversationID,
		UserID:         userID,
		ExpiresAt:      time.Now().Add(TypingTTL),
	}}
	entry.expiry = schedule.After(TypingTTL, func() {
		s.mu.Lock()
		if m[conversationID] == entry {
			delete(m, conversationID)
		}
		s.mu.Unlock()
		s.publish(bus.KindTypingChanged, conversationID)
	})
	m[conversationID] = entry
}
