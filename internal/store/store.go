// Package store persists conversations and their ordered messages in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"localchat/internal/logging"
)

// ErrNotReady is returned when an operation runs against a store that has
// not been opened, or has been closed.
var ErrNotReady = errors.New("store not ready")

// Role is the author of a message. The schema enforces the same closed set.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// LocalStore is the SQLite-backed conversation store. All writes are
// serialized behind the mutex; message insert and conversation timestamp
// bump commit as one transaction.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT DEFAULT 'New Chat',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL,
	role TEXT NOT NULL CHECK(role IN ('user','assistant','system')),
	content TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
CREATE INDEX IF NOT EXISTS idx_messages_order ON messages(conversation_id, created_at);
`

// Open initializes the SQLite database at the given path and ensures the
// schema exists. Safe to call once at process start; the returned store is
// ready for use.
func Open(path string) (*LocalStore, error) {
	log := logging.Get(logging.CategoryStore)
	log.Infof("opening store at %s", path)

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("open store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debugf("set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debugf("set journal_mode=WAL: %v", err)
	}
	// Cascade delete relies on this; sqlite defaults it off per connection.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store: enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store: create schema: %w", err)
	}

	log.Info("store schema ready")
	return &LocalStore{db: db, dbPath: path}, nil
}

// Close closes the database connection. Subsequent operations return
// ErrNotReady.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	logging.Get(logging.CategoryStore).Info("closing store")
	err := s.db.Close()
	s.db = nil
	return err
}

// ready must be called with at least a read lock held.
func (s *LocalStore) ready() error {
	if s == nil || s.db == nil {
		return ErrNotReady
	}
	return nil
}

// ClearAll removes every conversation and message. Used for full reset.
func (s *LocalStore) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	logging.Get(logging.CategoryStore).Warn("clearing all conversations and messages")
	if _, err := s.db.Exec("DELETE FROM conversations"); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	return nil
}
