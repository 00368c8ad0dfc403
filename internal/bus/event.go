package bus

import "time"

// Event kinds published by the messaging engine. Subscribers filter by
// namespace prefix ("message.", "notification.", ...).
const (
	KindConversationsLoaded = "conversation.loaded"
	KindConversationUpdated = "conversation.updated"
	KindMessageUpserted     = "message.upserted"
	KindMessageSendAck      = "message.send_ack"
	KindMessageSendFailed   = "message.send_failed"
	KindMessageStatus       = "message.status"
	KindNotificationRaised  = "notification.raised"
	KindTypingChanged       = "typing.changed"
)

// Event represents a state-change event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
