package messaging

import (
	"context"
	"fmt"

	"github.com/matheus3301/schoolmsg/internal/bus"
)

// setFlag calls the backend first and only then flips the local flag.
// There is no optimistic flip: on failure the flag is left as it was.
func (s *Store) setFlag(ctx context.Context, conversationID string, flag Flag, on bool) error {
	op := fmt.Sprintf("set %s=%t", flag, on)
	if err := s.backend.SetConversationFlag(ctx, conversationID, flag, on); err != nil {
		return s.fail(op, err)
	}

	s.mu.Lock()
	idx := s.convIndexLocked(conversationID)
	if idx >= 0 {
		s.conversations[idx].Flags.set(flag, on)
	}
	s.mu.Unlock()
	if idx < 0 {
		return s.fail(op, ErrConversationNotFound)
	}
	s.publish(bus.KindConversationUpdated, conversationID)
	return nil
}

func (s *Store) PinConversation(ctx context.Context, id string) error {
	return s.setFlag(ctx, id, FlagPinned, true)
}

func (s *Store) UnpinConversation(ctx context.Context, id string) error {
	return s.setFlag(ctx, id, FlagPinned, false)
}

func (s *Store) StarConversation(ctx context.Context, id string) error {
	return s.setFlag(ctx, id, FlagStarred, true)
}

func (s *Store) UnstarConversation(ctx context.Context, id string) error {
	return s.setFlag(ctx, id, FlagStarred, false)
}

func (s *Store) ArchiveConversation(ctx context.Context, id string) error {
	return s.setFlag(ctx, id, FlagArchived, true)
}

func (s *Store) UnarchiveConversation(ctx context.Context, id string) error {
	return s.setFlag(ctx, id, FlagArchived, false)
}

func (s *Store) ResolveConversation(ctx context.Context, id string) error {
	return s.setFlag(ctx, id, FlagResolved, true)
}

func (s *Store) UnresolveConversation(ctx context.Context, id string) error {
	return s.setFlag(ctx, id, FlagResolved, false)
}

func (s *Store) MuteConversation(ctx context.Context, id string) error {
	return s.setFlag(ctx, id, FlagMuted, true)
}

func (s *Store) UnmuteConversation(ctx context.Context, id string) error {
	return s.setFlag(ctx, id, FlagMuted, false)
}

// MarkAsRead clears the conversation's unread count and the unread flag on
// every loaded message.
func (s *Store) MarkAsRead(ctx context.Context, conversationID string) error {
	if err := s.backend.MarkAsRead(ctx, conversationID); err != nil {
		return s.fail("mark as read", err)
	}

	s.mu.Lock()
	msgs := s.messages[conversationID]
	for i := range msgs {
		msgs[i].Unread = false
	}
	if idx := s.convIndexLocked(conversationID); idx >= 0 {
		s.conversations[idx].UnreadCount = 0
	}
	s.recountLocked()
	s.mu.Unlock()

	s.publish(bus.KindConversationUpdated, conversationID)
	return nil
}

// MarkAsUnread flags the newest loaded message as unread. Without loaded
// messages the conversation simply shows one unread.
func (s *Store) MarkAsUnread(ctx context.Context, conversationID string) error {
	if err := s.backend.MarkAsUnread(ctx, conversationID); err != nil {
		return s.fail("mark as unread", err)
	}

	s.mu.Lock()
	if idx := s.convIndexLocked(conversationID); idx >= 0 {
		msgs := s.messages[conversationID]
		if len(msgs) > 0 {
			newest := 0
			for i, m := range msgs {
				if m.Timestamp.After(msgs[newest].Timestamp) {
					newest = i
				}
			}
			if !msgs[newest].Unread {
				msgs[newest].Unread = true
				s.conversations[idx].UnreadCount++
			}
			s.syncUnreadLocked(conversationID)
		} else if s.conversations[idx].UnreadCount == 0 {
			s.conversations[idx].UnreadCount = 1
		}
	}
	s.recountLocked()
	s.mu.Unlock()

	s.publish(bus.KindConversationUpdated, conversationID)
	return nil
}
