// Package convview binds a messaging store to a single conversation for a
// thread view: paging, sending to the recipient, typing.
package convview

import (
	"context"
	"sync"

	"github.com/matheus3301/schoolmsg/internal/messaging"
)

// Store is the subset of messaging.Store a View needs.
type Store interface {
	Conversation(id string) (messaging.Conversation, bool)
	Messages(conversationID string) []messaging.Message
	MessageCount(conversationID string) int
	LoadMessages(ctx context.Context, conversationID string, offset int) (int, error)
	SendMessage(ctx context.Context, req messaging.SendRequest) (messaging.Message, error)
	EmitTyping(conversationID string)
	IsTyping(conversationID string) bool
	MarkAsRead(ctx context.Context, conversationID string) error
}

// SendOptions are the optional fields of a send from the thread view.
type SendOptions struct {
	Category    messaging.Category
	Priority    messaging.Priority
	Attachments []string
	TemplateID  string
}

// View is a paging cursor over one conversation.
type View struct {
	mu             sync.Mutex
	store          Store
	conversationID string
	offset         int
	hasMore        bool
}

func New(store Store, conversationID string) *View {
	return &View{store: store, conversationID: conversationID, hasMore: true}
}

func (v *View) ConversationID() string {
	return v.conversationID
}

func (v *View) Messages() []messaging.Message {
	return v.store.Messages(v.conversationID)
}

func (v *View) HasMore() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hasMore
}

func (v *View) IsTyping() bool {
	return v.store.IsTyping(v.conversationID)
}

// Refresh resets paging and reloads the first page.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	v.offset = 0
	v.hasMore = true
	v.mu.Unlock()

	_, err := v.store.LoadMessages(ctx, v.conversationID, 0)
	return err
}

// LoadMore fetches the next page. A fetch that does not grow the message
// count ends paging. On error the offset is rolled back so the next call
// retries the same page.
func (v *View) LoadMore(ctx context.Context) error {
	v.mu.Lock()
	if !v.hasMore {
		v.mu.Unlock()
		return nil
	}
	v.offset += messaging.PageSize
	offset := v.offset
	v.mu.Unlock()

	before := v.store.MessageCount(v.conversationID)
	after, err := v.store.LoadMessages(ctx, v.conversationID, offset)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.offset -= messaging.PageSize
		return err
	}
	if after <= before {
		v.hasMore = false
	}
	return nil
}

// SendMessage sends content to this conversation's recipient.
func (v *View) SendMessage(ctx context.Context, content string, opts SendOptions) (messaging.Message, error) {
	req := messaging.SendRequest{
		ConversationID: v.conversationID,
		Content:        content,
		Category:       opts.Category,
		Priority:       opts.Priority,
		Attachments:    opts.Attachments,
		TemplateID:     opts.TemplateID,
	}
	if c, ok := v.store.Conversation(v.conversationID); ok {
		req.Recipient = c.Recipient
	}
	return v.store.SendMessage(ctx, req)
}

func (v *View) EmitTyping() {
	v.store.EmitTyping(v.conversationID)
}

func (v *View) MarkAsRead(ctx context.Context) error {
	return v.store.MarkAsRead(ctx, v.conversationID)
}
