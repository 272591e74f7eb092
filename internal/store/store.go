// ABOUTME: Store interface and data types for the support desk store of record
// ABOUTME: Defines Conversation and Message structs plus sender-role derivation

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateMessage is returned when a message with the same ID was already saved
var ErrDuplicateMessage = errors.New("message already exists")

// ErrConversationClosed is returned when a message is saved to a closed conversation
var ErrConversationClosed = errors.New("conversation is closed")

// Well-known sender IDs that never count as a human agent.
const (
	SenderBot    = "bot"
	SenderSystem = "system"
)

// ConversationStatus is the lifecycle state of a conversation
type ConversationStatus string

const (
	StatusActive ConversationStatus = "active"
	StatusClosed ConversationStatus = "closed"
)

// Conversation is a message thread for one visitor session
type Conversation struct {
	ID            string
	OriginChannel string
	VisitorID     string
	DepartmentID  string // empty means the general queue
	Status        ConversationStatus
	StartedAt     time.Time
	UpdatedAt     time.Time
}

// Message is a single append-only entry in a conversation
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sent_at"`
}

// SenderRole classifies who authored a message from a visitor's point of view
type SenderRole string

const (
	RoleVisitor SenderRole = "visitor"
	RoleBot     SenderRole = "bot"
	RoleAgent   SenderRole = "agent"
)

// Role derives the sender role relative to the given visitor.
// System messages are shown on the bot side.
func (m Message) Role(visitorID string) SenderRole {
	switch m.SenderID {
	case visitorID:
		return RoleVisitor
	case SenderBot, SenderSystem:
		return RoleBot
	default:
		return RoleAgent
	}
}

// ConversationStore creates and reads conversations
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	AssignDepartment(ctx context.Context, id, departmentID string) error
	CloseConversation(ctx context.Context, id string) error
	ListIdleConversations(ctx context.Context, idleSince time.Time) ([]*Conversation, error)
}

// MessageStore appends messages and lists them in time order
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *Message) error
	// ListMessages returns all messages of a conversation, oldest first.
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
}

// Store is the full store of record
type Store interface {
	ConversationStore
	MessageStore

	// Close releases any resources held by the store
	Close() error
}
