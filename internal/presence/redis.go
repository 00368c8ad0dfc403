// Package presence fans typing activity out over redis pub/sub.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "typing:"

// Channel returns the pub/sub channel for a conversation.
func Channel(conversationID string) string {
	return channelPrefix + conversationID
}

// Event is the JSON payload published on a typing channel.
type Event struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	At             time.Time `json:"at"`
}

// Config mirrors the [redis] config section.
type Config struct {
	Addr     string
	Password string
	DB       int
}

func NewClient(cfg Config) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// publisher is the part of *goredis.Client the emitter needs.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
}

// RedisEmitter implements messaging.TypingEmitter.
type RedisEmitter struct {
	client publisher
	now    func() time.Time
}

func NewRedisEmitter(client *goredis.Client) *RedisEmitter {
	return &RedisEmitter{client: client, now: time.Now}
}

func (e *RedisEmitter) EmitTyping(ctx context.Context, conversationID, userID string) error {
	payload, err := json.Marshal(Event{ConversationID: conversationID, UserID: userID, At: e.now()})
	if err != nil {
		return err
	}
	if err := e.client.Publish(ctx, Channel(conversationID), payload).Err(); err != nil {
		return fmt.Errorf("publish typing: %w", err)
	}
	return nil
}

// TypingSink receives remote typing events. messaging.Store implements it.
type TypingSink interface {
	SetRemoteTyping(conversationID, userID string)
}

// Subscriber listens on every typing channel and forwards events to a sink.
type Subscriber struct {
	client *goredis.Client
	sink   TypingSink
	logger *zap.Logger
}

func NewSubscriber(client *goredis.Client, sink TypingSink, logger *zap.Logger) *Subscriber {
	return &Subscriber{client: client, sink: sink, logger: logger}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (s *Subscriber) Run(ctx context.Context) error {
	sub := s.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.handle(msg.Channel, []byte(msg.Payload))
	}
}

func (s *Subscriber) handle(channel string, payload []byte) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		s.logger.Debug("bad typing payload", zap.String("channel", channel), zap.Error(err))
		return
	}
	if evt.ConversationID == "" {
		evt.ConversationID = strings.TrimPrefix(channel, channelPrefix)
	}
	s.sink.SetRemoteTyping(evt.ConversationID, evt.UserID)
}
