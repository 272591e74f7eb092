// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id             TEXT PRIMARY KEY,
			origin_channel TEXT NOT NULL,
			visitor_id     TEXT NOT NULL,
			department_id  TEXT,
			status         TEXT NOT NULL DEFAULT 'active',
			started_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL,

			CHECK (status IN ('active', 'closed'))
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_visitor ON conversations(visitor_id);
		CREATE INDEX IF NOT EXISTS idx_conversations_status_updated ON conversations(status, updated_at);

		CREATE TABLE IF NOT EXISTS messages (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL,
			sender_id       TEXT NOT NULL,
			body            TEXT NOT NULL,
			sent_at         TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_sent
			ON messages(conversation_id, sent_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreateConversation inserts a new conversation. Status defaults to active.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	if conv.Status == "" {
		conv.Status = StatusActive
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.StartedAt
	}

	query := `
		INSERT INTO conversations (id, origin_channel, visitor_id, department_id, status, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.OriginChannel,
		conv.VisitorID,
		nullString(conv.DepartmentID),
		string(conv.Status),
		conv.StartedAt.UTC().Format(timeLayout),
		conv.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "visitor_id", conv.VisitorID)
	return nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, origin_channel, visitor_id, department_id, status, started_at, updated_at
		FROM conversations
		WHERE id = ?
	`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return conv, nil
}

// AssignDepartment sets the routing target of a conversation.
func (s *SQLiteStore) AssignDepartment(ctx context.Context, id, departmentID string) error {
	return s.updateConversation(ctx, id, `UPDATE conversations SET department_id = ?, updated_at = ? WHERE id = ?`,
		nullString(departmentID))
}

// CloseConversation marks a conversation closed. Closing twice is not an error.
func (s *SQLiteStore) CloseConversation(ctx context.Context, id string) error {
	return s.updateConversation(ctx, id, `UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`,
		string(StatusClosed))
}

func (s *SQLiteStore) updateConversation(ctx context.Context, id, query string, value any) error {
	result, err := s.db.ExecContext(ctx, query, value, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated conversation", "id", id)
	return nil
}

// ListIdleConversations returns active conversations not updated since idleSince.
func (s *SQLiteStore) ListIdleConversations(ctx context.Context, idleSince time.Time) ([]*Conversation, error) {
	query := `
		SELECT id, origin_channel, visitor_id, department_id, status, started_at, updated_at
		FROM conversations
		WHERE status = 'active' AND updated_at < ?
		ORDER BY updated_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, idleSince.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("querying idle conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return convs, nil
}

// SaveMessage appends a message and bumps the conversation's updated_at.
// Returns ErrDuplicateMessage if a message with the same ID exists,
// ErrNotFound for an unknown conversation and ErrConversationClosed once the
// conversation is closed.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	sentAt := msg.SentAt.UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM conversations WHERE id = ?`, msg.ConversationID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking conversation status: %w", err)
	}
	if ConversationStatus(status) == StatusClosed {
		return ErrConversationClosed
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, body, sent_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.Body, sentAt)
	if err != nil {
		if isConstraintViolation(err, "messages.id") {
			return ErrDuplicateMessage
		}
		return fmt.Errorf("inserting message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`,
		sentAt, msg.ConversationID); err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "conversation_id", msg.ConversationID)
	return nil
}

// ListMessages returns every message in a conversation in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, body, sent_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY sent_at ASC, seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var msg Message
		var sentAtStr string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Body, &sentAtStr); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msg.SentAt, err = time.Parse(timeLayout, sentAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing sent_at: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return msgs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var dept sql.NullString
	var status, startedAtStr, updatedAtStr string

	if err := row.Scan(
		&conv.ID,
		&conv.OriginChannel,
		&conv.VisitorID,
		&dept,
		&status,
		&startedAtStr,
		&updatedAtStr,
	); err != nil {
		return nil, err
	}

	conv.DepartmentID = dept.String
	conv.Status = ConversationStatus(status)

	var err error
	conv.StartedAt, err = time.Parse(timeLayout, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	conv.UpdatedAt, err = time.Parse(timeLayout, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &conv, nil
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation on column
func isConstraintViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") && strings.Contains(errStr, column)
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
