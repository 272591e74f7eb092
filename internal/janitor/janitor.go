// ABOUTME: Scheduled closing of conversations nobody has touched for a while
// ABOUTME: Runs on a standard 5-field cron schedule and leaves a system note before closing

package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/2389/coven-desk/internal/store"
)

// ClosingNote is the system message appended to a conversation closed for inactivity.
const ClosingNote = "Conversa encerrada por inatividade."

// Store is what the janitor needs from the store of record
type Store interface {
	ListIdleConversations(ctx context.Context, idleSince time.Time) ([]*store.Conversation, error)
	SaveMessage(ctx context.Context, msg *store.Message) error
	CloseConversation(ctx context.Context, id string) error
}

// Janitor closes idle conversations on a schedule.
type Janitor struct {
	store       Store
	schedule    cron.Schedule
	spec        string
	idleTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// New parses the cron schedule. Pass nil logger for default.
func New(s Store, schedule string, idleTimeout time.Duration, logger *slog.Logger) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if idleTimeout <= 0 {
		return nil, fmt.Errorf("idle timeout must be positive, got %v", idleTimeout)
	}

	spec := strings.TrimSpace(schedule)
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", spec, err)
	}

	return &Janitor{
		store:       s,
		schedule:    sched,
		spec:        spec,
		idleTimeout: idleTimeout,
		logger:      logger.With("component", "janitor"),
		now:         time.Now,
	}, nil
}

// Next returns the next sweep time after t.
func (j *Janitor) Next(t time.Time) time.Time {
	return j.schedule.Next(t)
}

// Run sweeps on every scheduled tick until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	j.logger.Info("janitor scheduled", "cron", j.spec, "idle_timeout", j.idleTimeout)

	for {
		now := j.now()
		next := j.schedule.Next(now)
		j.logger.Debug("next sweep", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := j.Sweep(ctx); err != nil {
			j.logger.Error("sweep failed", "error", err)
		}
	}
}

// Sweep closes every active conversation idle for longer than the timeout
// and returns how many were closed. One failing conversation does not stop
// the others.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.idleTimeout)
	idle, err := j.store.ListIdleConversations(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing idle conversations: %w", err)
	}

	closed := 0
	for _, conv := range idle {
		if err := j.close(ctx, conv.ID); err != nil {
			j.logger.Warn("failed to close idle conversation", "conversation_id", conv.ID, "error", err)
			continue
		}
		closed++
	}

	if closed > 0 {
		j.logger.Info("closed idle conversations", "count", closed, "idle_since", cutoff.Format(time.RFC3339))
	}
	return closed, nil
}

func (j *Janitor) close(ctx context.Context, conversationID string) error {
	note := &store.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       store.SenderSystem,
		Body:           ClosingNote,
		SentAt:         j.now(),
	}
	if err := j.store.SaveMessage(ctx, note); err != nil {
		return fmt.Errorf("saving closing note: %w", err)
	}
	return j.store.CloseConversation(ctx, conversationID)
}
