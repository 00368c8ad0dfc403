package messaging

import (
	"context"
	"slices"
	"time"

	"github.com/matheus3301/schoolmsg/internal/bus"
)

// AddReaction applies the reaction locally, then calls the backend. On
// failure the reaction is filtered back out by (type, user). Adding a
// reaction the user already has is a no-op, so a rollback never removes
// state that predates the call.
func (s *Store) AddReaction(ctx context.Context, messageID, reactionType string) error {
	r := Reaction{Type: reactionType, UserID: s.self.ID, Timestamp: time.Now()}
	sameReaction := func(x Reaction) bool { return x.Type == r.Type && x.UserID == r.UserID }

	s.mu.Lock()
	already := false
	s.eachMessageLocked(messageID, func(m *Message) {
		already = already || slices.ContainsFunc(m.Reactions, sameReaction)
	})
	if already {
		s.mu.Unlock()
		return nil
	}
	s.eachMessageLocked(messageID, func(m *Message) {
		m.Reactions = append(m.Reactions, r)
	})
	s.mu.Unlock()
	s.publish(bus.KindMessageUpserted, messageID)

	if err := s.backend.AddReaction(ctx, messageID, reactionType); err != nil {
		s.mu.Lock()
		s.eachMessageLocked(messageID, func(m *Message) {
			m.Reactions = slices.DeleteFunc(m.Reactions, sameReaction)
		})
		s.mu.Unlock()
		s.signalRefresh()
		return s.fail("add reaction", err)
	}
	return nil
}

// RemoveReaction removes the reaction locally, then calls the backend.
// There is no rollback if the backend call fails.
func (s *Store) RemoveReaction(ctx context.Context, messageID, reactionType string) error {
	s.mu.Lock()
	s.eachMessageLocked(messageID, func(m *Message) {
		m.Reactions = slices.DeleteFunc(m.Reactions, func(x Reaction) bool {
			return x.Type == reactionType && x.UserID == s.self.ID
		})
	})
	s.mu.Unlock()
	s.publish(bus.KindMessageUpserted, messageID)

	if err := s.backend.RemoveReaction(ctx, messageID, reactionType); err != nil {
		return s.fail("remove reaction", err)
	}
	return nil
}

// PinMessage pins a message inside its own conversation only.
func (s *Store) PinMessage(ctx context.Context, conversationID, messageID string) error {
	if err := s.backend.PinMessage(ctx, conversationID, messageID); err != nil {
		return s.fail("pin message", err)
	}
	s.mu.Lock()
	msgs := s.messages[conversationID]
	if idx := slices.IndexFunc(msgs, func(m Message) bool { return m.ID == messageID }); idx >= 0 {
		msgs[idx].Pinned = true
	}
	s.mu.Unlock()
	s.publish(bus.KindMessageUpserted, messageID)
	return nil
}

// UnpinMessage has no conversation argument, so it clears the flag in every
// conversation holding the id.
func (s *Store) UnpinMessage(ctx context.Context, messageID string) error {
	if err := s.backend.UnpinMessage(ctx, messageID); err != nil {
		return s.fail("unpin message", err)
	}
	s.mu.Lock()
	s.eachMessageLocked(messageID, func(m *Message) { m.Pinned = false })
	s.mu.Unlock()
	s.publish(bus.KindMessageUpserted, messageID)
	return nil
}

// eachMessageLocked scans every conversation for messageID.
func (s *Store) eachMessageLocked(messageID string, fn func(*Message)) {
	for _, msgs := range s.messages {
		for i := range msgs {
			if msgs[i].ID == messageID {
				fn(&msgs[i])
			}
		}
	}
}
