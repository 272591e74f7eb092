// ABOUTME: In-memory fan-out broadcaster used as the default push transport
// ABOUTME: Publishes persisted messages to all subscribers of a conversation

package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/coven-desk/internal/store"
)

// Broadcaster provides in-memory pub/sub for persisted messages.
// Subscribers register for a conversation id and receive every message
// published for it after they subscribed.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan store.Message // conversationID -> subID -> ch
	logger      *slog.Logger
}

var (
	_ Transport = (*Broadcaster)(nil)
	_ Publisher = (*Broadcaster)(nil)
)

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan store.Message),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers for messages of one conversation. The subscription is
// removed and its channel closed when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, conversationID string) (<-chan store.Message, error) {
	ch, _ := b.subscribe(ctx, conversationID)
	return ch, nil
}

func (b *Broadcaster) subscribe(ctx context.Context, conversationID string) (<-chan store.Message, string) {
	subID := uuid.New().String()
	ch := make(chan store.Message, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[conversationID]; !ok {
		b.subscribers[conversationID] = make(map[string]chan store.Message)
	}
	b.subscribers[conversationID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"conversation_id", conversationID,
		"sub_id", subID)

	go func() {
		<-ctx.Done()
		b.unsubscribe(conversationID, subID)
	}()

	return ch, subID
}

// Publish sends a message to all subscribers of its conversation.
// Non-blocking: messages are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(_ context.Context, msg store.Message) error {
	b.mu.RLock()
	subs := b.subscribers[msg.ConversationID]
	targets := make([]chan store.Message, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	// Sends happen under the read lock so unsubscribe cannot close a channel mid-send
	for _, ch := range targets {
		select {
		case ch <- msg:
		default:
			b.logger.Debug("dropped message for slow subscriber",
				"conversation_id", msg.ConversationID,
				"message_id", msg.ID)
		}
	}
	b.mu.RUnlock()
	return nil
}

// Subscribers returns the number of live subscriptions for a conversation.
func (b *Broadcaster) Subscribers(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[conversationID])
}

func (b *Broadcaster) unsubscribe(conversationID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[conversationID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, conversationID)
	}

	b.logger.Debug("subscriber removed",
		"conversation_id", conversationID,
		"sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for convID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, convID)
	}

	b.logger.Debug("broadcaster closed")
}
