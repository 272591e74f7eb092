// ABOUTME: Redis pub/sub push transport for multi-process deployments
// ABOUTME: One channel per conversation carrying JSON-encoded messages

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/2389/coven-desk/internal/store"
)

const channelPrefix = "coven_desk:conversation:"

// ChannelName returns the Redis channel carrying a conversation's messages
func ChannelName(conversationID string) string {
	return channelPrefix + conversationID
}

// RedisTransport publishes and subscribes through Redis pub/sub.
type RedisTransport struct {
	client *redis.Client
	logger *slog.Logger
}

var (
	_ Transport = (*RedisTransport)(nil)
	_ Publisher = (*RedisTransport)(nil)
)

// NewRedisTransport wraps a connected client. Pass nil logger for default.
func NewRedisTransport(client *redis.Client, logger *slog.Logger) *RedisTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisTransport{
		client: client,
		logger: logger.With("component", "redis_transport"),
	}
}

func (t *RedisTransport) Publish(ctx context.Context, msg store.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	if err := t.client.Publish(ctx, ChannelName(msg.ConversationID), payload).Err(); err != nil {
		return fmt.Errorf("publish (conversation=%s): %w", msg.ConversationID, err)
	}
	return nil
}

// Subscribe waits for Redis to confirm the subscription before returning, so
// messages published after Subscribe returns are not missed.
func (t *RedisTransport) Subscribe(ctx context.Context, conversationID string) (<-chan store.Message, error) {
	ps := t.client.Subscribe(ctx, ChannelName(conversationID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe (conversation=%s): %w", conversationID, err)
	}

	out := make(chan store.Message, subscriberBufferSize)
	go func() {
		defer close(out)
		defer ps.Close()

		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-in:
				if !ok {
					return
				}
				msg, err := DecodeMessage(raw.Payload)
				if err != nil {
					t.logger.Warn("dropping undecodable payload",
						"error", err,
						"channel", raw.Channel)
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// DecodeMessage parses a pub/sub payload
func DecodeMessage(payload string) (store.Message, error) {
	var msg store.Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return store.Message{}, fmt.Errorf("decoding message: %w", err)
	}
	if msg.ID == "" || msg.ConversationID == "" {
		return store.Message{}, fmt.Errorf("decoding message: missing id or conversation_id")
	}
	return msg, nil
}
