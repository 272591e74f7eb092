// ABOUTME: Push-channel abstractions keyed by conversation id
// ABOUTME: Transport delivers published messages; PublishingStore publishes on save

package realtime

import (
	"context"
	"log/slog"

	"github.com/2389/coven-desk/internal/store"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Transport is a push-notification channel keyed by conversation id.
type Transport interface {
	// Subscribe returns a channel of messages published for the conversation.
	// The channel is closed when ctx is cancelled or the transport drops.
	Subscribe(ctx context.Context, conversationID string) (<-chan store.Message, error)
}

// Publisher fans a persisted message out to the conversation's subscribers.
type Publisher interface {
	Publish(ctx context.Context, msg store.Message) error
}

// PublishingStore wraps a store so that every saved message is also published.
// A failed publish is logged; the save itself still succeeds.
type PublishingStore struct {
	store.Store
	publisher Publisher
	logger    *slog.Logger
}

// NewPublishingStore wraps s. Pass nil logger for default.
func NewPublishingStore(s store.Store, p Publisher, logger *slog.Logger) *PublishingStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishingStore{
		Store:     s,
		publisher: p,
		logger:    logger.With("component", "publishing_store"),
	}
}

func (s *PublishingStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if err := s.Store.SaveMessage(ctx, msg); err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, *msg); err != nil {
		s.logger.Warn("failed to publish message",
			"error", err,
			"message_id", msg.ID,
			"conversation_id", msg.ConversationID)
	}
	return nil
}
