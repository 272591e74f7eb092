// ABOUTME: Conversation session manager: create or resume the visitor's conversation
// ABOUTME: Persists the conversation id locally and collapses concurrent creates into one

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/2389/coven-desk/internal/identity"
	"github.com/2389/coven-desk/internal/localstate"
	"github.com/2389/coven-desk/internal/store"
)

// KeyConversationID is the fixed local storage key for the active conversation
const KeyConversationID = "coven_desk.conversation_id"

// SessionStore defines what the manager needs from the store of record
type SessionStore interface {
	CreateConversation(ctx context.Context, conv *store.Conversation) error
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	AssignDepartment(ctx context.Context, id, departmentID string) error
	SaveMessage(ctx context.Context, msg *store.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error)
}

// Manager owns the durable conversation identity of one widget instance.
type Manager struct {
	store         SessionStore
	kv            localstate.KV
	originChannel string
	logger        *slog.Logger

	creating singleflight.Group
}

// NewManager creates a session manager. Pass nil logger for default.
func NewManager(s SessionStore, kv localstate.KV, originChannel string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if originChannel == "" {
		originChannel = "widget"
	}
	return &Manager{
		store:         s,
		kv:            kv,
		originChannel: originChannel,
		logger:        logger.With("component", "conversation"),
	}
}

// StoredID returns the conversation id persisted by a previous session, if any.
func (m *Manager) StoredID(ctx context.Context) (string, bool) {
	id, ok, err := m.kv.Get(ctx, KeyConversationID)
	if err != nil {
		m.logger.Warn("reading stored conversation id", "error", err)
		return "", false
	}
	return id, ok && id != ""
}

// Forget drops the stored conversation id so the next Create starts fresh.
func (m *Manager) Forget(ctx context.Context) error {
	return m.kv.Delete(ctx, KeyConversationID)
}

// Resume fetches the history of a stored conversation, oldest first.
// Returns store.ErrNotFound when the id was minted locally but never created
// remotely. A closed conversation is forgotten and reported as
// store.ErrConversationClosed. Any other failure is a TransientError.
// Resume never creates.
func (m *Manager) Resume(ctx context.Context, id string) (*store.Conversation, []store.Message, error) {
	conv, err := m.store.GetConversation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, store.ErrNotFound
	}
	if err != nil {
		return nil, nil, transient("resume", err)
	}
	if conv.Status == store.StatusClosed {
		m.forgetClosed(ctx, id)
		return nil, nil, store.ErrConversationClosed
	}

	msgs, err := m.store.ListMessages(ctx, id)
	if err != nil {
		return nil, nil, transient("resume", err)
	}

	history := make([]store.Message, 0, len(msgs))
	for _, msg := range msgs {
		history = append(history, *msg)
	}

	m.logger.Debug("conversation resumed", "conversation_id", id, "messages", len(history))
	return conv, history, nil
}

// Create returns the visitor's conversation, creating it remotely if needed.
// The id is written to local storage before the remote call so that it stays
// stable across a failed attempt and its retry. Concurrent callers for the same
// visitor share a single in-flight creation.
func (m *Manager) Create(ctx context.Context, visitor identity.Visitor, departmentOverride string) (*store.Conversation, error) {
	v, err, shared := m.creating.Do(visitor.ID, func() (any, error) {
		return m.create(ctx, visitor, departmentOverride)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.logger.Debug("joined in-flight conversation creation", "visitor_id", visitor.ID)
	}
	return v.(*store.Conversation), nil
}

func (m *Manager) create(ctx context.Context, visitor identity.Visitor, departmentOverride string) (*store.Conversation, error) {
	id, ok := m.StoredID(ctx)
	if ok {
		conv, err := m.store.GetConversation(ctx, id)
		switch {
		case err == nil && conv.Status != store.StatusClosed:
			return conv, nil
		case err == nil:
			m.forgetClosed(ctx, id)
			ok = false
		case !errors.Is(err, store.ErrNotFound):
			return nil, transient("create conversation", err)
		}
		// Not found: minted locally by an earlier attempt that never reached the store
	}
	if !ok {
		id = uuid.NewString()
		if err := m.kv.Set(ctx, KeyConversationID, id); err != nil {
			m.logger.Warn("conversation id not persisted, it will not survive a reload",
				"conversation_id", id,
				"error", err)
		}
	}

	now := time.Now()
	conv := &store.Conversation{
		ID:            id,
		OriginChannel: m.originChannel,
		VisitorID:     visitor.ID,
		DepartmentID:  departmentOverride,
		Status:        store.StatusActive,
		StartedAt:     now,
		UpdatedAt:     now,
	}
	if err := m.store.CreateConversation(ctx, conv); err != nil {
		return nil, transient("create conversation", err)
	}

	m.logger.Info("conversation created",
		"conversation_id", conv.ID,
		"visitor_id", visitor.ID,
		"department_id", departmentOverride)
	return conv, nil
}

// Persist saves a message to the store of record. Saving an id that already
// exists counts as success, so a retry after a lost acknowledgement is safe.
// A closed conversation returns store.ErrConversationClosed, which a retry
// cannot fix.
func (m *Manager) Persist(ctx context.Context, msg *store.Message) error {
	err := m.store.SaveMessage(ctx, msg)
	if errors.Is(err, store.ErrDuplicateMessage) {
		m.logger.Debug("message already persisted", "message_id", msg.ID)
		return nil
	}
	if errors.Is(err, store.ErrConversationClosed) {
		return err
	}
	if err != nil {
		return transient("persist message", err)
	}
	return nil
}

// AssignDepartment records the routing decision for a conversation.
func (m *Manager) AssignDepartment(ctx context.Context, conversationID, departmentID string) error {
	if err := m.store.AssignDepartment(ctx, conversationID, departmentID); err != nil {
		return transient("assign department", fmt.Errorf("conversation %s: %w", conversationID, err))
	}
	m.logger.Info("conversation routed",
		"conversation_id", conversationID,
		"department_id", departmentID)
	return nil
}

// forgetClosed drops a stored id whose conversation was closed remotely.
func (m *Manager) forgetClosed(ctx context.Context, id string) {
	m.logger.Info("stored conversation is closed, starting over", "conversation_id", id)
	if stored, ok := m.StoredID(ctx); ok && stored != id {
		return
	}
	if err := m.Forget(ctx); err != nil {
		m.logger.Warn("closed conversation id not forgotten", "conversation_id", id, "error", err)
	}
}
