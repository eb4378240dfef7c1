// Package store keeps a small on-disk cache of recent conversation
// messages so the client can replay context after a restart without a
// round trip to the backend.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nonotalk/voice-client/internal/chat"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	is_user         INTEGER NOT NULL,
	content         TEXT NOT NULL,
	ts              INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages (conversation_id, ts);
`

// Store is a SQLite-backed recent-message cache, bounded per conversation.
type Store struct {
	db      *sql.DB
	maxKept int
}

// DefaultPath returns the cache path under the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "nonotalk", "cache.sqlite")
}

// Open opens (or creates) the cache at path, keeping at most maxKept
// messages per conversation.
func Open(path string, maxKept int) (*Store, error) {
	if maxKept <= 0 {
		return nil, fmt.Errorf("open cache: maxKept must be positive, got %d", maxKept)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}

	return &Store{db: db, maxKept: maxKept}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append upserts msgs into the cache and prunes the conversation back down
// to the retention bound, oldest first.
func (s *Store) Append(conversationID string, msgs ...chat.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	for _, m := range msgs {
		isUser := 0
		if m.IsUser {
			isUser = 1
		}
		_, err := tx.Exec(`
			INSERT INTO messages (id, conversation_id, is_user, content, ts)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET content = excluded.content
		`, m.ID, conversationID, isUser, m.Content, m.Timestamp.UnixMilli())
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	_, err = tx.Exec(`
		DELETE FROM messages
		WHERE conversation_id = ?
		  AND id NOT IN (
			SELECT id FROM messages
			WHERE conversation_id = ?
			ORDER BY ts DESC
			LIMIT ?
		  )
	`, conversationID, conversationID, s.maxKept)
	if err != nil {
		return fmt.Errorf("prune messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// Recent returns the cached messages for a conversation in chronological
// order, up to the retention bound.
func (s *Store) Recent(conversationID string) ([]chat.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, is_user, content, ts
		FROM messages
		WHERE conversation_id = ?
		ORDER BY ts ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var m chat.Message
		var isUser int
		var ts int64
		if err := rows.Scan(&m.ID, &isUser, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ConversationID = conversationID
		m.IsUser = isUser != 0
		m.Timestamp = time.UnixMilli(ts)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
