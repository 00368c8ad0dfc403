package messaging

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/schoolmsg/internal/bus"
	"github.com/matheus3301/schoolmsg/internal/delivery"
	"github.com/matheus3301/schoolmsg/internal/notify"
	"go.uber.org/zap"
)

// SendMessage appends an optimistic entry before calling the backend, then
// replaces it in place on success or marks it failed on error. The entry is
// never removed here; a failed message stays until RetryMessage or
// DiscardMessage.
func (s *Store) SendMessage(ctx context.Context, req SendRequest) (Message, error) {
	return s.send(ctx, req, "")
}

// send does the work of SendMessage. When replaceID is set, that failed entry
// is removed in the same critical section that appends the new optimistic
// entry, so the message is never absent from the conversation.
func (s *Store) send(ctx context.Context, req SendRequest, replaceID string) (Message, error) {
	if err := validate.Struct(req); err != nil {
		return Message{}, s.fail("send message", fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}
	if req.Category == "" {
		req.Category = CategoryGeneral
	}
	if req.Priority == "" {
		req.Priority = notify.PriorityNormal
	}

	tempID := tempPrefix + uuid.NewString()
	temp := Message{
		ID:             tempID,
		ConversationID: req.ConversationID,
		Sender:         s.self,
		Content:        req.Content,
		Category:       req.Category,
		Priority:       req.Priority,
		Status:         delivery.Sending,
		Timestamp:      time.Now(),
		Origin:         Pending{TempID: tempID},
	}

	s.mu.Lock()
	msgs := s.messages[req.ConversationID]
	if replaceID != "" {
		msgs = slices.DeleteFunc(msgs, func(m Message) bool { return m.ID == replaceID })
	}
	s.messages[req.ConversationID] = append(msgs, temp)
	s.mu.Unlock()
	s.publish(bus.KindMessageUpserted, temp.ID)

	sent, err := s.backend.SendMessage(ctx, req)
	if err != nil {
		s.mu.Lock()
		markFailed := func(m *Message) {
			m.Status = delivery.Failed
			m.Origin = Failed{TempID: tempID, Err: err.Error(), Request: req}
		}
		if !s.replacePendingLocked(req.ConversationID, tempID, markFailed) {
			// The page was replaced underneath the send; keep the failure visible.
			markFailed(&temp)
			s.messages[req.ConversationID] = append(s.messages[req.ConversationID], temp)
		}
		s.mu.Unlock()
		s.publish(bus.KindMessageSendFailed, tempID)
		wrapped := s.fail("send message", err)
		s.refreshConversations(ctx)
		return Message{}, wrapped
	}

	if sent.Status == "" || sent.Status == delivery.Sending {
		sent.Status = delivery.Sent
	}
	if sent.ConversationID == "" {
		sent.ConversationID = req.ConversationID
	}
	sent.Origin = Confirmed{ID: sent.ID}

	s.mu.Lock()
	s.confirmLocked(req.ConversationID, tempID, sent)
	s.mu.Unlock()

	s.logger.Info("message sent", zap.String("temp_id", tempID), zap.String("id", sent.ID))
	s.publish(bus.KindMessageSendAck, sent.ID)
	s.refreshConversations(ctx)
	return cloneMessage(sent), nil
}

// replacePendingLocked finds the optimistic entry by identity, not position.
func (s *Store) replacePendingLocked(conversationID, tempID string, update func(*Message)) bool {
	msgs := s.messages[conversationID]
	idx := slices.IndexFunc(msgs, func(m Message) bool { return isPending(m, tempID) })
	if idx < 0 {
		return false
	}
	update(&msgs[idx])
	return true
}

// confirmLocked swaps the optimistic entry for the confirmed message. If the
// confirmed id already arrived by another path (a realtime push or a page
// reload), the optimistic entry is dropped instead so the id appears once.
func (s *Store) confirmLocked(conversationID, tempID string, sent Message) {
	msgs := s.messages[conversationID]
	known := slices.ContainsFunc(msgs, func(m Message) bool { return m.ID == sent.ID })
	if known {
		s.messages[conversationID] = slices.DeleteFunc(msgs, func(m Message) bool { return isPending(m, tempID) })
		return
	}
	if !s.replacePendingLocked(conversationID, tempID, func(m *Message) { *m = sent }) {
		s.messages[conversationID] = append(msgs, sent)
	}
}

// RetryMessage resends a failed message as a brand-new send. The failed
// entry gives way to the new optimistic entry atomically; if the request
// cannot be sent at all the failed entry is left in place.
func (s *Store) RetryMessage(ctx context.Context, failedID string) (Message, error) {
	failed, ok := s.Message(failedID)
	if !ok {
		return Message{}, fmt.Errorf("retry %s: %w", failedID, ErrMessageNotFound)
	}
	if failed.Status != delivery.Failed {
		return Message{}, fmt.Errorf("retry %s: %w", failedID, ErrNotFailed)
	}

	var req SendRequest
	if f, ok := failed.Origin.(Failed); ok && f.Request.ConversationID != "" {
		req = f.Request
	} else {
		req = SendRequest{
			ConversationID: failed.ConversationID,
			Content:        failed.Content,
			Category:       failed.Category,
			Priority:       failed.Priority,
		}
		for _, a := range failed.Attachments {
			req.Attachments = append(req.Attachments, a.ID)
		}
	}
	if req.Recipient.ID == "" {
		if c, ok := s.Conversation(req.ConversationID); ok {
			req.Recipient = c.Recipient
		}
	}
	return s.send(ctx, req, failedID)
}

// DiscardMessage explicitly removes a failed message.
func (s *Store) DiscardMessage(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for convID, msgs := range s.messages {
		idx := slices.IndexFunc(msgs, func(m Message) bool { return m.ID == id })
		if idx < 0 {
			continue
		}
		if msgs[idx].Status != delivery.Failed {
			return fmt.Errorf("discard %s: %w", id, ErrNotFailed)
		}
		s.messages[convID] = slices.Delete(msgs, idx, idx+1)
		return nil
	}
	return fmt.Errorf("discard %s: %w", id, ErrMessageNotFound)
}

// SendBroadcast fans a message out via the backend and raises one local
// notification when it completes.
func (s *Store) SendBroadcast(ctx context.Context, req BroadcastRequest) (BroadcastResult, error) {
	if err := validate.Struct(req); err != nil {
		return BroadcastResult{}, s.fail("send broadcast", fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}
	res, err := s.backend.SendBroadcast(ctx, req)
	if err != nil {
		return BroadcastResult{}, s.fail("send broadcast", err)
	}

	priority := req.Priority
	if priority == "" {
		priority = notify.PriorityNormal
	}
	s.publish(bus.KindNotificationRaised, notify.Notification{
		ID:        uuid.NewString(),
		Type:      notify.TypeBroadcast,
		Priority:  priority,
		Timestamp: time.Now(),
		Title:     "Broadcast sent",
		Body:      fmt.Sprintf("Sent to %d of %d recipients", res.Delivered, len(req.Recipients)),
	})
	return res, nil
}

// ForwardMessage forwards a message to other conversations and refreshes the list.
func (s *Store) ForwardMessage(ctx context.Context, messageID string, conversationIDs []string) error {
	if err := s.backend.ForwardMessage(ctx, messageID, conversationIDs); err != nil {
		return s.fail("forward message", err)
	}
	s.refreshConversations(ctx)
	return nil
}

// ScheduleMessage queues a send for later. Scheduled messages are held apart
// from live messages.
func (s *Store) ScheduleMessage(ctx context.Context, req SendRequest, at time.Time) (ScheduledMessage, error) {
	if err := validate.Struct(req); err != nil {
		return ScheduledMessage{}, s.fail("schedule message", fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}
	if !at.After(time.Now()) {
		return ScheduledMessage{}, s.fail("schedule message", fmt.Errorf("%w: scheduled time is in the past", ErrInvalidRequest))
	}
	sm, err := s.backend.ScheduleMessage(ctx, req, at)
	if err != nil {
		return ScheduledMessage{}, s.fail("schedule message", err)
	}
	s.mu.Lock()
	s.scheduled = append(s.scheduled, sm)
	s.mu.Unlock()
	s.signalRefresh()
	return sm, nil
}

// CancelScheduledMessage cancels a queued send.
func (s *Store) CancelScheduledMessage(ctx context.Context, id string) error {
	if err := s.backend.CancelScheduledMessage(ctx, id); err != nil {
		return s.fail("cancel scheduled message", err)
	}
	s.mu.Lock()
	s.scheduled = slices.DeleteFunc(s.scheduled, func(m ScheduledMessage) bool { return m.ID == id })
	s.mu.Unlock()
	s.signalRefresh()
	return nil
}

// LoadScheduledMessages replaces the scheduled list from the backend.
func (s *Store) LoadScheduledMessages(ctx context.Context) error {
	list, err := s.backend.GetScheduledMessages(ctx)
	if err != nil {
		return s.fail("load scheduled messages", err)
	}
	s.mu.Lock()
	s.scheduled = list
	s.mu.Unlock()
	s.signalRefresh()
	return nil
}

// Scheduled returns a snapshot of scheduled messages.
func (s *Store) Scheduled() []ScheduledMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.scheduled)
}
