package notify

import (
	"context"
	"time"
)

// Type classifies a notification.
type Type string

const (
	TypeMessage   Type = "message"
	TypeMention   Type = "mention"
	TypeBroadcast Type = "broadcast"
	TypeReminder  Type = "reminder"
	TypeSystem    Type = "system"
)

// Priority of the underlying event. Urgent alerts bypass quiet hours.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Notification is the in-app record of an event worth the user's attention.
type Notification struct {
	ID             string    `json:"id"`
	Type           Type      `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	Priority       Priority  `json:"priority"`
	Read           bool      `json:"read"`
	Timestamp      time.Time `json:"timestamp"`
	SenderName     string    `json:"sender_name,omitempty"`
	Title          string    `json:"title,omitempty"`
	Body           string    `json:"body,omitempty"`
}

// Permission is the platform's answer to "may we show system alerts".
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Alert is a shaped, system-level notification ready for display.
type Alert struct {
	Title          string
	Body           string
	Tag            string
	ConversationID string
	Urgent         bool
	OnClick        func()
}

// Platform is the host notification API.
type Platform interface {
	Permission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	Show(ctx context.Context, a Alert) error
	PlaySound(ctx context.Context, mode SoundMode) error
}

// UnreadCounter supplies the global unread message count for count-only previews.
type UnreadCounter interface {
	UnreadCount() int
}
