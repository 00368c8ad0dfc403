package backend

import (
	"time"

	"github.com/matheus3301/schoolmsg/internal/messaging"
	"github.com/matheus3301/schoolmsg/internal/template"
)

// ServiceName is the fully-qualified gRPC service the client talks to.
const ServiceName = "schoolmsg.v1.Messaging"

// Method names on ServiceName.
const (
	MethodGetConversations       = "GetConversations"
	MethodGetMessages            = "GetMessages"
	MethodSendMessage            = "SendMessage"
	MethodSendBroadcast          = "SendBroadcast"
	MethodSetConversationFlag    = "SetConversationFlag"
	MethodMarkAsRead             = "MarkAsRead"
	MethodMarkAsUnread           = "MarkAsUnread"
	MethodAddReaction            = "AddReaction"
	MethodRemoveReaction         = "RemoveReaction"
	MethodPinMessage             = "PinMessage"
	MethodUnpinMessage           = "UnpinMessage"
	MethodForwardMessage         = "ForwardMessage"
	MethodScheduleMessage        = "ScheduleMessage"
	MethodCancelScheduledMessage = "CancelScheduledMessage"
	MethodGetScheduledMessages   = "GetScheduledMessages"
	MethodEmitTyping             = "EmitTyping"
	MethodGetTemplates           = "GetTemplates"
	MethodRecordTemplateUsage    = "RecordTemplateUsage"
	MethodUploadAttachment       = "UploadAttachment"
)

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

type Empty struct{}

type GetConversationsRequest struct {
	Filters messaging.Filters `json:"filters"`
	Sort    messaging.SortBy  `json:"sort"`
}

type GetConversationsResponse struct {
	Conversations []messaging.Conversation `json:"conversations"`
}

type GetMessagesRequest struct {
	ConversationID string `json:"conversation_id"`
	Limit          int    `json:"limit"`
	Offset         int    `json:"offset"`
}

type GetMessagesResponse struct {
	Messages []messaging.Message `json:"messages"`
}

type SetConversationFlagRequest struct {
	ConversationID string         `json:"conversation_id"`
	Flag           messaging.Flag `json:"flag"`
	Value          bool           `json:"value"`
}

type ConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

type ReactionRequest struct {
	MessageID string `json:"message_id"`
	Type      string `json:"type"`
}

type PinMessageRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id"`
}

type ForwardMessageRequest struct {
	MessageID       string   `json:"message_id"`
	ConversationIDs []string `json:"conversation_ids"`
}

type ScheduleMessageRequest struct {
	Request     messaging.SendRequest `json:"request"`
	ScheduledAt time.Time             `json:"scheduled_at"`
}

type IDRequest struct {
	ID string `json:"id"`
}

type GetScheduledMessagesResponse struct {
	Messages []messaging.ScheduledMessage `json:"messages"`
}

type TypingRequest struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type GetTemplatesResponse struct {
	Templates []template.Template `json:"templates"`
}

// AttachmentChunk is one frame of the UploadAttachment client stream. Only
// the first frame carries the metadata fields.
type AttachmentChunk struct {
	MessageID string `json:"message_id,omitempty"`
	FileName  string `json:"file_name,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	Size      int64  `json:"size,omitempty"`
	Data      []byte `json:"data"`
}
