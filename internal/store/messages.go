package store

import (
	"fmt"
	"time"

	"localchat/internal/logging"
)

// Message is one persisted chat message. Messages are immutable after
// creation and are destroyed only by cascading conversation delete.
type Message struct {
	ID             int64
	ConversationID int64
	Role           Role
	Content        string
	CreatedAt      time.Time
}

// SaveMessage inserts the message and bumps the owning conversation's
// updated_at in the same transaction. Either both writes commit or neither
// does, so the conversation timestamp can never go stale relative to a
// persisted message. Returns the assigned message id.
func (s *LocalStore) SaveMessage(msg Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return 0, err
	}
	if !msg.Role.Valid() {
		return 0, fmt.Errorf("save message: invalid role %q", msg.Role)
	}
	if msg.Content == "" {
		return 0, fmt.Errorf("save message: empty content")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("save message: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO messages (conversation_id, role, content, created_at)
		 VALUES (?, ?, ?, strftime('%Y-%m-%d %H:%M:%f','now'))`,
		msg.ConversationID, string(msg.Role), msg.Content,
	)
	if err != nil {
		return 0, fmt.Errorf("save message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save message: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE conversations SET updated_at = strftime('%Y-%m-%d %H:%M:%f','now') WHERE id = ?`,
		msg.ConversationID,
	); err != nil {
		return 0, fmt.Errorf("save message: bump conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("save message: commit: %w", err)
	}

	logging.Get(logging.CategoryStore).Debugf("saved message id=%d conv=%d role=%s len=%d",
		id, msg.ConversationID, msg.Role, len(msg.Content))
	return id, nil
}

// GetMessages returns all messages for a conversation in creation order.
// The id tiebreak keeps read-back order equal to insertion order even when
// two messages share a timestamp.
func (s *LocalStore) GetMessages(conversationID int64) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("get messages for %d: %w", conversationID, err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("get messages: scan: %w", err)
		}
		m.Role = Role(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return out, nil
}
