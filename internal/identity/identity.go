// ABOUTME: Visitor identity manager minting and persisting an anonymous visitor id
// ABOUTME: Falls back to a session-scoped id when durable local storage fails

package identity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/coven-desk/internal/localstate"
)

// Fixed local storage keys
const (
	KeyVisitorID    = "coven_desk.visitor_id"
	KeyVisitorName  = "coven_desk.visitor_name"
	KeyVisitorEmail = "coven_desk.visitor_email"
)

// Visitor is the unauthenticated end user of the widget
type Visitor struct {
	ID    string
	Name  string
	Email string
}

// Manager hands out the visitor identity for one widget instance.
type Manager struct {
	kv     localstate.KV
	logger *slog.Logger

	mu      sync.Mutex
	session string // in-memory id used when kv is unusable
}

// NewManager creates an identity manager. Pass nil logger for default.
func NewManager(kv localstate.KV, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		kv:     kv,
		logger: logger.With("component", "identity"),
	}
}

// GetOrCreate returns the persisted visitor, minting and persisting a new id
// on first use. It never fails: when storage is unavailable the visitor gets
// an id that lives only as long as this Manager.
func (m *Manager) GetOrCreate(ctx context.Context) Visitor {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != "" {
		return Visitor{ID: m.session}
	}

	id, ok, err := m.kv.Get(ctx, KeyVisitorID)
	if err != nil {
		return m.fallback(err)
	}
	if !ok || id == "" {
		id = uuid.NewString()
		if err := m.kv.Set(ctx, KeyVisitorID, id); err != nil {
			return m.fallback(err)
		}
		m.logger.Debug("minted visitor id", "visitor_id", id)
	}

	v := Visitor{ID: id}
	// Profile fields are optional; a read failure just leaves them blank
	v.Name, _, _ = m.kv.Get(ctx, KeyVisitorName)
	v.Email, _, _ = m.kv.Get(ctx, KeyVisitorEmail)
	return v
}

func (m *Manager) fallback(err error) Visitor {
	m.session = uuid.NewString()
	m.logger.Warn("durable storage unavailable, using session-scoped visitor id",
		"error", err,
		"visitor_id", m.session)
	return Visitor{ID: m.session}
}

// SetProfile stores the visitor's optional name and email. The id is untouched.
func (m *Manager) SetProfile(ctx context.Context, name, email string) error {
	if err := m.kv.Set(ctx, KeyVisitorName, name); err != nil {
		return err
	}
	return m.kv.Set(ctx, KeyVisitorEmail, email)
}
