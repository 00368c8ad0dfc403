// Package backend is the gRPC client for the school messaging service. It
// speaks JSON over gRPC with a hand-written method table instead of
// generated stubs.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/matheus3301/schoolmsg/internal/attachment"
	"github.com/matheus3301/schoolmsg/internal/messaging"
	"github.com/matheus3301/schoolmsg/internal/template"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	grpcstatus "google.golang.org/grpc/status"
)

// ChunkSize is the payload size of each UploadAttachment frame.
const ChunkSize = 32 << 10

var ErrUnavailable = errors.New("backend unavailable")

// Options configures a Client.
type Options struct {
	Addr    string
	Token   string
	Timeout time.Duration
	// DialOptions are appended after the defaults; tests use them for bufconn.
	DialOptions []grpc.DialOption
}

// Client implements messaging.Backend, messaging.TypingEmitter,
// template.Source and attachment.Transport.
type Client struct {
	conn    *grpc.ClientConn
	token   string
	timeout time.Duration
	logger  *zap.Logger
}

var (
	_ messaging.Backend       = (*Client)(nil)
	_ messaging.TypingEmitter = (*Client)(nil)
	_ template.Source         = (*Client)(nil)
	_ attachment.Transport    = (*Client)(nil)
)

// New creates a client for opts.Addr. The connection is established lazily.
func New(opts Options, logger *zap.Logger) (*Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts.DialOptions...)

	conn, err := grpc.NewClient(opts.Addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial backend: %w", err)
	}
	return &Client{conn: conn, token: opts.Token, timeout: opts.Timeout, logger: logger}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) outgoing(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return ctx, func() {}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	ctx, cancel := c.outgoing(ctx)
	defer cancel()
	if err := c.conn.Invoke(ctx, fullMethod(method), req, resp); err != nil {
		return translate(method, err)
	}
	return nil
}

// translate maps gRPC status codes onto the sentinel errors callers match on.
func translate(method string, err error) error {
	st, ok := grpcstatus.FromError(err)
	if !ok {
		return fmt.Errorf("%s: %w", method, err)
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return fmt.Errorf("%s: %w: %s", method, messaging.ErrInvalidRequest, st.Message())
	case codes.NotFound:
		switch method {
		case MethodGetTemplates, MethodRecordTemplateUsage:
			return fmt.Errorf("%s: %w", method, template.ErrTemplateNotFound)
		case MethodGetConversations, MethodSetConversationFlag, MethodMarkAsRead, MethodMarkAsUnread:
			return fmt.Errorf("%s: %w", method, messaging.ErrConversationNotFound)
		default:
			return fmt.Errorf("%s: %w", method, messaging.ErrMessageNotFound)
		}
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w: %s", method, ErrUnavailable, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%s: %w", method, context.Canceled)
	default:
		return fmt.Errorf("%s: %s", method, st.Message())
	}
}

func (c *Client) GetConversations(ctx context.Context, f messaging.Filters, sort messaging.SortBy) ([]messaging.Conversation, error) {
	var resp GetConversationsResponse
	err := c.invoke(ctx, MethodGetConversations, &GetConversationsRequest{Filters: f, Sort: sort}, &resp)
	return resp.Conversations, err
}

func (c *Client) GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]messaging.Message, error) {
	var resp GetMessagesResponse
	req := &GetMessagesRequest{ConversationID: conversationID, Limit: limit, Offset: offset}
	err := c.invoke(ctx, MethodGetMessages, req, &resp)
	return resp.Messages, err
}

func (c *Client) SendMessage(ctx context.Context, req messaging.SendRequest) (messaging.Message, error) {
	var msg messaging.Message
	err := c.invoke(ctx, MethodSendMessage, &req, &msg)
	return msg, err
}

func (c *Client) SendBroadcast(ctx context.Context, req messaging.BroadcastRequest) (messaging.BroadcastResult, error) {
	var res messaging.BroadcastResult
	err := c.invoke(ctx, MethodSendBroadcast, &req, &res)
	return res, err
}

func (c *Client) SetConversationFlag(ctx context.Context, conversationID string, flag messaging.Flag, on bool) error {
	req := &SetConversationFlagRequest{ConversationID: conversationID, Flag: flag, Value: on}
	return c.invoke(ctx, MethodSetConversationFlag, req, &Empty{})
}

func (c *Client) MarkAsRead(ctx context.Context, conversationID string) error {
	return c.invoke(ctx, MethodMarkAsRead, &ConversationRequest{ConversationID: conversationID}, &Empty{})
}

func (c *Client) MarkAsUnread(ctx context.Context, conversationID string) error {
	return c.invoke(ctx, MethodMarkAsUnread, &ConversationRequest{ConversationID: conversationID}, &Empty{})
}

func (c *Client) AddReaction(ctx context.Context, messageID, reactionType string) error {
	return c.invoke(ctx, MethodAddReaction, &ReactionRequest{MessageID: messageID, Type: reactionType}, &Empty{})
}

func (c *Client) RemoveReaction(ctx context.Context, messageID, reactionType string) error {
	return c.invoke(ctx, MethodRemoveReaction, &ReactionRequest{MessageID: messageID, Type: reactionType}, &Empty{})
}

func (c *Client) PinMessage(ctx context.Context, conversationID, messageID string) error {
	return c.invoke(ctx, MethodPinMessage, &PinMessageRequest{ConversationID: conversationID, MessageID: messageID}, &Empty{})
}

func (c *Client) UnpinMessage(ctx context.Context, messageID string) error {
	return c.invoke(ctx, MethodUnpinMessage, &PinMessageRequest{MessageID: messageID}, &Empty{})
}

func (c *Client) ForwardMessage(ctx context.Context, messageID string, conversationIDs []string) error {
	req := &ForwardMessageRequest{MessageID: messageID, ConversationIDs: conversationIDs}
	return c.invoke(ctx, MethodForwardMessage, req, &Empty{})
}

func (c *Client) ScheduleMessage(ctx context.Context, req messaging.SendRequest, at time.Time) (messaging.ScheduledMessage, error) {
	var sm messaging.ScheduledMessage
	err := c.invoke(ctx, MethodScheduleMessage, &ScheduleMessageRequest{Request: req, ScheduledAt: at}, &sm)
	return sm, err
}

func (c *Client) CancelScheduledMessage(ctx context.Context, id string) error {
	return c.invoke(ctx, MethodCancelScheduledMessage, &IDRequest{ID: id}, &Empty{})
}

func (c *Client) GetScheduledMessages(ctx context.Context) ([]messaging.ScheduledMessage, error) {
	var resp GetScheduledMessagesResponse
	err := c.invoke(ctx, MethodGetScheduledMessages, &Empty{}, &resp)
	return resp.Messages, err
}

func (c *Client) EmitTyping(ctx context.Context, conversationID, userID string) error {
	return c.invoke(ctx, MethodEmitTyping, &TypingRequest{ConversationID: conversationID, UserID: userID}, &Empty{})
}

func (c *Client) GetTemplates(ctx context.Context) ([]template.Template, error) {
	var resp GetTemplatesResponse
	err := c.invoke(ctx, MethodGetTemplates, &Empty{}, &resp)
	return resp.Templates, err
}

func (c *Client) RecordTemplateUsage(ctx context.Context, id string) error {
	return c.invoke(ctx, MethodRecordTemplateUsage, &IDRequest{ID: id}, &Empty{})
}

var uploadStream = &grpc.StreamDesc{StreamName: MethodUploadAttachment, ClientStreams: true}

// UploadAttachment streams f in ChunkSize frames, reporting bytes handed to
// the transport after each frame.
func (c *Client) UploadAttachment(ctx context.Context, messageID string, f attachment.File, progress func(int64)) (messaging.Attachment, error) {
	if f.Body == nil {
		return messaging.Attachment{}, fmt.Errorf("%s: file %s has no body", MethodUploadAttachment, f.Name)
	}
	ctx, cancel := c.outgoing(ctx)
	defer cancel()

	stream, err := c.conn.NewStream(ctx, uploadStream, fullMethod(MethodUploadAttachment))
	if err != nil {
		return messaging.Attachment{}, translate(MethodUploadAttachment, err)
	}

	buf := make([]byte, ChunkSize)
	var sent int64
	first := true
	for {
		n, readErr := f.Body.Read(buf)
		if n > 0 || first {
			chunk := &AttachmentChunk{Data: buf[:n]}
			if first {
				chunk.MessageID, chunk.FileName, chunk.MimeType, chunk.Size = messageID, f.Name, f.MimeType, f.Size
				first = false
			}
			if err := stream.SendMsg(chunk); err != nil {
				// The real status arrives on RecvMsg.
				if errors.Is(err, io.EOF) {
					break
				}
				return messaging.Attachment{}, translate(MethodUploadAttachment, err)
			}
			sent += int64(n)
			if progress != nil {
				progress(sent)
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return messaging.Attachment{}, fmt.Errorf("read %s: %w", f.Name, readErr)
		}
	}
	if err := stream.CloseSend(); err != nil {
		return messaging.Attachment{}, translate(MethodUploadAttachment, err)
	}

	var att messaging.Attachment
	if err := stream.RecvMsg(&att); err != nil {
		return messaging.Attachment{}, translate(MethodUploadAttachment, err)
	}
	c.logger.Debug("attachment uploaded",
		zap.String("message_id", messageID), zap.String("file", f.Name), zap.Int64("bytes", sent))
	return att, nil
}
