package store

import (
	"fmt"
	"time"

	"localchat/internal/logging"
)

// Conversation is one chat thread. UpdatedAt bumps on every message append,
// so ListConversations surfaces the most recently active thread first.
type Conversation struct {
	ID        int64
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultTitle is used when a conversation is created with an empty title.
const DefaultTitle = "New Chat"

// CreateConversation inserts a new conversation and returns its assigned id.
func (s *LocalStore) CreateConversation(title string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return 0, err
	}
	if title == "" {
		title = DefaultTitle
	}

	res, err := s.db.Exec(
		`INSERT INTO conversations (title, created_at, updated_at)
		 VALUES (?, strftime('%Y-%m-%d %H:%M:%f','now'), strftime('%Y-%m-%d %H:%M:%f','now'))`,
		title,
	)
	if err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}

	logging.Get(logging.CategoryStore).Infof("created conversation id=%d title=%q", id, title)
	return id, nil
}

// ListConversations returns all conversations, most recently updated first.
func (s *LocalStore) ListConversations() ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT id, title, created_at, updated_at
		 FROM conversations
		 ORDER BY updated_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list conversations: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

// DeleteConversation removes the conversation and cascades deletion of all
// its messages.
func (s *LocalStore) DeleteConversation(conversationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	if _, err := s.db.Exec("DELETE FROM conversations WHERE id = ?", conversationID); err != nil {
		return fmt.Errorf("delete conversation %d: %w", conversationID, err)
	}
	logging.Get(logging.CategoryStore).Infof("deleted conversation id=%d", conversationID)
	return nil
}
