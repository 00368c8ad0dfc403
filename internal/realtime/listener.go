// Package realtime applies backend-pushed updates received over a websocket.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/schoolmsg/internal/delivery"
	"github.com/matheus3301/schoolmsg/internal/messaging"
	"go.uber.org/zap"
)

const (
	readWait   = 90 * time.Second
	writeWait  = 10 * time.Second
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// Event types sent by the backend.
const (
	TypeMessageNew    = "message.new"
	TypeMessageStatus = "message.status"
	TypeTyping        = "typing"
)

// Envelope is one frame on the wire.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type StatusPayload struct {
	MessageID string          `json:"message_id"`
	Status    delivery.Status `json:"status"`
}

type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// Sink receives decoded events. messaging.Store implements it.
type Sink interface {
	ReceiveMessage(msg messaging.Message)
	ApplyStatusUpdate(messageID string, to delivery.Status) error
	SetRemoteTyping(conversationID, userID string)
}

// Listener keeps a websocket open to the backend and feeds a Sink.
type Listener struct {
	url        string
	header     http.Header
	dialer     *websocket.Dialer
	sink       Sink
	logger     *zap.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
	connected  atomic.Bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates a listener for url. token, when set, is sent as a bearer token.
func New(url, token string, sink Sink, logger *zap.Logger) *Listener {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &Listener{
		url:        url,
		header:     header,
		dialer:     websocket.DefaultDialer,
		sink:       sink,
		logger:     logger,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}
}

// Connected reports whether a websocket is currently open.
func (l *Listener) Connected() bool {
	return l.connected.Load()
}

// Start runs the listener in the background until Stop.
func (l *Listener) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		_ = l.Run(ctx)
	}()
}

// Stop cancels the listener and waits for it to exit.
func (l *Listener) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}

// Run connects and reconnects with capped exponential backoff until ctx ends.
func (l *Listener) Run(ctx context.Context) error {
	backoff := l.minBackoff
	for {
		start := time.Now()
		err := l.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		// A connection that stayed up for a while resets the backoff.
		if time.Since(start) > l.maxBackoff {
			backoff = l.minBackoff
		}
		l.logger.Warn("realtime connection lost", zap.Error(err), zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, l.maxBackoff)
	}
}

func (l *Listener) session(ctx context.Context) error {
	conn, _, err := l.dialer.DialContext(ctx, l.url, l.header)
	if err != nil {
		return fmt.Errorf("dial realtime: %w", err)
	}
	l.connected.Store(true)
	defer l.connected.Store(false)
	l.logger.Info("realtime connected", zap.String("url", l.url))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = conn.Close()
		case <-stop:
			_ = conn.Close()
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				l.logger.Warn("dropping malformed realtime frame", zap.Error(err))
				continue
			}
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		l.dispatch(env)
	}
}

func (l *Listener) dispatch(env Envelope) {
	switch env.Type {
	case TypeMessageNew:
		var msg messaging.Message
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			l.logger.Warn("bad message payload", zap.Error(err))
			return
		}
		l.sink.ReceiveMessage(msg)
	case TypeMessageStatus:
		var p StatusPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			l.logger.Warn("bad status payload", zap.Error(err))
			return
		}
		if err := l.sink.ApplyStatusUpdate(p.MessageID, p.Status); err != nil {
			l.logger.Debug("status update not applied", zap.String("message_id", p.MessageID), zap.Error(err))
		}
	case TypeTyping:
		var p TypingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			l.logger.Warn("bad typing payload", zap.Error(err))
			return
		}
		l.sink.SetRemoteTyping(p.ConversationID, p.UserID)
	default:
		l.logger.Debug("ignoring realtime event", zap.String("type", env.Type))
	}
}
