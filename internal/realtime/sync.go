// ABOUTME: Real-time sync client keeping one subscription per widget
// ABOUTME: Filters self-echoes and redeliveries, resubscribes after transport drops

package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-desk/internal/store"
)

const (
	defaultBackoff     = 500 * time.Millisecond
	maxBackoff         = 30 * time.Second
	seenCapacity       = 1024
	failureLogEveryNth = 5
)

// SyncClient owns at most one active subscription and emits inbound
// messages on Events. It never surfaces transport failures to the visitor.
type SyncClient struct {
	transport Transport
	backoff   time.Duration
	logger    *slog.Logger
	events    chan store.Message

	mu     sync.Mutex
	active *subscription
}

type subscription struct {
	conversationID string
	visitorID      string
	cancel         context.CancelFunc
	done           chan struct{}
}

// NewSyncClient creates a client over transport. A zero backoff uses the
// default. Pass nil logger for default.
func NewSyncClient(transport Transport, backoff time.Duration, logger *slog.Logger) *SyncClient {
	if logger == nil {
		logger = slog.Default()
	}
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	return &SyncClient{
		transport: transport,
		backoff:   backoff,
		logger:    logger.With("component", "sync"),
		events:    make(chan store.Message, subscriberBufferSize),
	}
}

// Events is drained by the orchestrator. Messages from the visitor themself
// never appear here.
func (c *SyncClient) Events() <-chan store.Message {
	return c.events
}

// Active returns the conversation currently subscribed to, or "".
func (c *SyncClient) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.conversationID
}

// Subscribe makes conversationID the single active subscription, tearing the
// previous one down first. Subscribing again to the active conversation is a
// no-op. ctx bounds the lifetime of the subscription. If the first attempt
// fails the error is returned and retries continue in the background.
func (c *SyncClient) Subscribe(ctx context.Context, conversationID, visitorID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil && c.active.conversationID == conversationID {
		return nil
	}
	c.stopLocked()

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		conversationID: conversationID,
		visitorID:      visitorID,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	c.active = sub

	ch, err := c.transport.Subscribe(subCtx, conversationID)
	if err != nil {
		c.logger.Warn("subscribe failed, retrying in background",
			"conversation_id", conversationID,
			"error", err)
		err = fmt.Errorf("subscribing to %s: %w", conversationID, err)
	} else {
		c.logger.Debug("subscribed", "conversation_id", conversationID)
	}

	go c.run(subCtx, sub, ch)
	return err
}

// Unsubscribe tears down the active subscription, if any.
func (c *SyncClient) Unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// stopLocked cancels the active subscription and waits for its goroutine,
// so no event of the old conversation is emitted afterwards.
func (c *SyncClient) stopLocked() {
	if c.active == nil {
		return
	}
	c.active.cancel()
	<-c.active.done
	c.logger.Debug("unsubscribed", "conversation_id", c.active.conversationID)
	c.active = nil
}

func (c *SyncClient) run(ctx context.Context, sub *subscription, ch <-chan store.Message) {
	defer close(sub.done)

	seen := newSeenSet(seenCapacity)
	failures := 0
	if ch == nil {
		failures = 1
	}

	for {
		if ch == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.delay(failures)):
			}

			var err error
			ch, err = c.transport.Subscribe(ctx, sub.conversationID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				failures++
				if failures%failureLogEveryNth == 0 {
					c.logger.Warn("resubscribe keeps failing",
						"conversation_id", sub.conversationID,
						"attempts", failures,
						"error", err)
				}
				continue
			}
			c.logger.Info("resubscribed", "conversation_id", sub.conversationID, "attempts", failures)
			failures = 0
		}

		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				// Messages published until the resubscribe lands are not replayed
				c.logger.Debug("transport dropped, resubscribing", "conversation_id", sub.conversationID)
				ch = nil
				failures = 1
				continue
			}
			c.deliver(ctx, sub, seen, msg)
		}
	}
}

func (c *SyncClient) deliver(ctx context.Context, sub *subscription, seen *seenSet, msg store.Message) {
	if msg.ConversationID != sub.conversationID {
		return
	}
	if msg.SenderID == sub.visitorID {
		return // rendered optimistically when sent
	}
	if seen.checkAndMark(msg.ID) {
		return
	}
	select {
	case c.events <- msg:
	case <-ctx.Done():
	}
}

// delay is the backoff before resubscribe attempt n (n >= 1).
func (c *SyncClient) delay(n int) time.Duration {
	d := c.backoff
	for i := 1; i < n && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}
