// Package store provides the store of record for support conversations.
//
// # Architecture
//
// Two narrow interfaces describe what the widget engine consumes:
//
//   - ConversationStore: create/read conversations, record department
//     assignment, close idle conversations
//   - MessageStore: append messages, list a conversation oldest first
//
// SQLiteStore implements both on top of modernc.org/sqlite (pure Go, no cgo).
//
// # Data Models
//
//   - Conversation: one visitor session, optionally routed to a department
//   - Message: append-only; SenderID is the visitor id, "bot", "system" or an
//     agent id. Role derives visitor/bot/agent relative to a visitor.
//
// # Ordering
//
// Timestamps are stored in a fixed-width UTC layout so that ORDER BY sent_at
// is chronological; equal timestamps fall back to insertion order.
//
// # Errors
//
//   - ErrNotFound: conversation does not exist
//   - ErrDuplicateMessage: a message ID was saved twice
//   - ErrConversationClosed: a message was saved to a closed conversation
package store
