package messaging

import (
	"context"
	"time"
)

// Backend is the remote messaging service. Persistence and partial-delivery
// semantics are its concern.
type Backend interface {
	GetConversations(ctx context.Context, filters Filters, sort SortBy) ([]Conversation, error)
	GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]Message, error)
	SendMessage(ctx context.Context, req SendRequest) (Message, error)
	SendBroadcast(ctx context.Context, req BroadcastRequest) (BroadcastResult, error)

	SetConversationFlag(ctx context.Context, conversationID string, flag Flag, on bool) error
	MarkAsRead(ctx context.Context, conversationID string) error
	MarkAsUnread(ctx context.Context, conversationID string) error

	AddReaction(ctx context.Context, messageID, reactionType string) error
	RemoveReaction(ctx context.Context, messageID, reactionType string) error
	PinMessage(ctx context.Context, conversationID, messageID string) error
	UnpinMessage(ctx context.Context, messageID string) error
	ForwardMessage(ctx context.Context, messageID string, conversationIDs []string) error

	ScheduleMessage(ctx context.Context, req SendRequest, at time.Time) (ScheduledMessage, error)
	CancelScheduledMessage(ctx context.Context, id string) error
	GetScheduledMessages(ctx context.Context) ([]ScheduledMessage, error)
}

// TypingEmitter announces that the local user is typing. Emission is
// fire-and-forget; nothing waits on an acknowledgement.
type TypingEmitter interface {
	EmitTyping(ctx context.Context, conversationID, userID string) error
}
