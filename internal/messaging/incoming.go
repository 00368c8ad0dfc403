package messaging

import (
	"fmt"
	"slices"

	"github.com/matheus3301/schoolmsg/internal/bus"
	"github.com/matheus3301/schoolmsg/internal/delivery"
	"github.com/matheus3301/schoolmsg/internal/notify"
	"go.uber.org/zap"
)

const previewLen = 100

// ReceiveMessage applies a backend-pushed message. It is appended to the
// conversation's page if one is loaded, counted as unread unless it is ours,
// and raises a notification unless the conversation is muted. An echo of our
// own message that is still being sent is left to the send to reconcile.
func (s *Store) ReceiveMessage(msg Message) {
	msg.Origin = Confirmed{ID: msg.ID}
	fromSelf := msg.Sender.ID == s.self.ID
	msg.Unread = !fromSelf

	s.mu.Lock()
	msgs, loaded := s.messages[msg.ConversationID]
	if slices.ContainsFunc(msgs, func(m Message) bool { return m.ID == msg.ID }) {
		s.mu.Unlock()
		return
	}
	if fromSelf && slices.ContainsFunc(msgs, func(m Message) bool {
		_, pending := m.Origin.(Pending)
		return pending && m.Content == msg.Content
	}) {
		s.mu.Unlock()
		return
	}
	if loaded {
		s.messages[msg.ConversationID] = append(msgs, msg)
	}

	muted := false
	if idx := s.convIndexLocked(msg.ConversationID); idx >= 0 {
		c := &s.conversations[idx]
		c.LastMessage = &Summary{Content: truncate(msg.Content, previewLen), SenderName: msg.Sender.Name, At: msg.Timestamp}
		if msg.Unread {
			c.UnreadCount++
			s.syncUnreadLocked(msg.ConversationID)
		}
		muted = c.Flags.Muted
	}
	s.recountLocked()
	s.mu.Unlock()

	s.publish(bus.KindMessageUpserted, msg.ID)
	if fromSelf || muted {
		return
	}

	priority := msg.Priority
	if priority == "" {
		priority = notify.PriorityNormal
	}
	s.publish(bus.KindNotificationRaised, notify.Notification{
		Type:           notify.TypeMessage,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Priority:       priority,
		Timestamp:      msg.Timestamp,
		SenderName:     msg.Sender.Name,
		Body:           msg.Content,
	})
}

// ApplyStatusUpdate moves a message along sent→delivered→read. Only
// backend-confirmed updates come through here.
func (s *Store) ApplyStatusUpdate(messageID string, to delivery.Status) error {
	var change delivery.Change
	var err error
	found := false

	s.mu.Lock()
	s.eachMessageLocked(messageID, func(m *Message) {
		found = true
		var next delivery.Status
		next, err = delivery.Transition(m.Status, to)
		if err == nil {
			change = delivery.Change{MessageID: messageID, From: m.Status, To: next}
			m.Status = next
		}
	})
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("status update %s: %w", messageID, ErrMessageNotFound)
	}
	if err != nil {
		s.logger.Debug("ignoring status update", zap.String("message_id", messageID), zap.Error(err))
		return err
	}
	s.publish(bus.KindMessageStatus, change)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
