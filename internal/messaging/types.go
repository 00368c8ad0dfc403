package messaging

import (
	"time"

	"github.com/matheus3301/schoolmsg/internal/delivery"
	"github.com/matheus3301/schoolmsg/internal/notify"
)

// Role of a participant in the school.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Participant identifies a sender or recipient.
type Participant struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
	Role Role   `json:"role" validate:"omitempty,oneof=teacher parent student admin"`
}

// Category of a message.
type Category string

const (
	CategoryGeneral    Category = "general"
	CategoryAttendance Category = "attendance"
	CategoryAcademic   Category = "academic"
	CategoryBehavior   Category = "behavior"
	CategoryEvent      Category = "event"
	CategoryEmergency  Category = "emergency"
)

// Priority is shared with notifications so urgent messages bypass quiet hours.
type Priority = notify.Priority

// Flags is the set of per-conversation toggles.
type Flags struct {
	Pinned   bool `json:"pinned"`
	Starred  bool `json:"starred"`
	Archived bool `json:"archived"`
	Resolved bool `json:"resolved"`
	Muted    bool `json:"muted"`
}

// Flag names a single conversation toggle.
type Flag string

const (
	FlagPinned   Flag = "pinned"
	FlagStarred  Flag = "starred"
	FlagArchived Flag = "archived"
	FlagResolved Flag = "resolved"
	FlagMuted    Flag = "muted"
)

func (f *Flags) set(flag Flag, on bool) {
	switch flag {
	case FlagPinned:
		f.Pinned = on
	case FlagStarred:
		f.Starred = on
	case FlagArchived:
		f.Archived = on
	case FlagResolved:
		f.Resolved = on
	case FlagMuted:
		f.Muted = on
	}
}

// Summary is the last-message preview shown in the conversation list.
type Summary struct {
	Content    string    `json:"content"`
	SenderName string    `json:"sender_name"`
	At         time.Time `json:"at"`
}

// Conversation is a thread with a single recipient.
type Conversation struct {
	ID          string      `json:"id"`
	Recipient   Participant `json:"recipient"`
	UnreadCount int         `json:"unread_count"`
	Flags       Flags       `json:"flags"`
	LastMessage *Summary    `json:"last_message,omitempty"`
}

// UploadState tracks an attachment through upload.
type UploadState string

const (
	UploadPending   UploadState = "pending"
	UploadUploading UploadState = "uploading"
	UploadDone      UploadState = "uploaded"
	UploadFailed    UploadState = "failed"
)

// Attachment is a file linked to an existing message.
type Attachment struct {
	ID       string      `json:"id"`
	FileName string      `json:"file_name"`
	Size     int64       `json:"size"`
	MimeType string      `json:"mime_type"`
	State    UploadState `json:"state"`
	URL      string      `json:"url,omitempty"`
}

// Reaction is one user's reaction to a message.
type Reaction struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is a single entry in a conversation.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Sender         Participant     `json:"sender"`
	Content        string          `json:"content"`
	Category       Category        `json:"category"`
	Priority       Priority        `json:"priority"`
	Status         delivery.Status `json:"status"`
	Attachments    []Attachment    `json:"attachments,omitempty"`
	Reactions      []Reaction      `json:"reactions,omitempty"`
	Pinned         bool            `json:"pinned"`
	Forwarded      bool            `json:"forwarded"`
	Unread         bool            `json:"unread"`
	Timestamp      time.Time       `json:"timestamp"`

	// Origin is local bookkeeping and never crosses the wire.
	Origin Origin `json:"-"`
}

// ScheduledMessage is a send queued for a future time.
type ScheduledMessage struct {
	ID          string      `json:"id"`
	Request     SendRequest `json:"request"`
	ScheduledAt time.Time   `json:"scheduled_at"`
}

// TypingIndicator marks someone typing in a conversation until it expires.
type TypingIndicator struct {
	ConversationID string
	UserID         string
	ExpiresAt      time.Time
}

// SendRequest is the input to SendMessage.
type SendRequest struct {
	ConversationID string      `json:"conversation_id" validate:"required"`
	Recipient      Participant `json:"recipient" validate:"-"` // optional; the conversation implies it
	Content        string      `json:"content" validate:"required_without=Attachments"`
	Category       Category    `json:"category"`
	Priority       Priority    `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	Attachments    []string    `json:"attachments,omitempty"`
	TemplateID     string      `json:"template_id,omitempty"`
}

// BroadcastRequest fans a message out to many recipients.
type BroadcastRequest struct {
	Recipients []Participant `json:"recipients" validate:"required,min=1,dive"`
	Content    string        `json:"content" validate:"required"`
	Category   Category      `json:"category"`
	Priority   Priority      `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
}

// BroadcastResult is what the backend reports for a broadcast. Partial
// delivery semantics belong to the backend.
type BroadcastResult struct {
	ID        string `json:"id"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
}

// SortBy orders the conversation list.
type SortBy string

const (
	SortRecent SortBy = "recent"
	SortUnread SortBy = "unread"
	SortName   SortBy = "name"
)

// Filters narrows the conversation list. Filtering happens on the backend.
type Filters struct {
	Query    string   `json:"query,omitempty"`
	Role     Role     `json:"role,omitempty"`
	Category Category `json:"category,omitempty"`
	Unread   bool     `json:"unread,omitempty"`
	Archived bool     `json:"archived,omitempty"`
	Starred  bool     `json:"starred,omitempty"`
	Pinned   bool     `json:"pinned,omitempty"`
	Resolved bool     `json:"resolved,omitempty"`
}
