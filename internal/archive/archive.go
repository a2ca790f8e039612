// Package archive keeps a local SQLite copy of every settled exchange, so a
// transcript can be inspected after a restart even when the backend holding
// the authoritative history is unreachable.
package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/nelsonwm45/senti-mochi-go/internal/chat"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS messages (
    id         TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    role       TEXT NOT NULL,
    content    TEXT NOT NULL,
    citations  TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
`

// Store persists conversation messages in SQLite. It satisfies
// chat.Archiver.
type Store struct {
	db *sql.DB
}

// Open opens or creates the archive database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_busy_timeout=10000&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle so sibling stores can keep their tables
// in the same database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Save writes one message under its session. Re-archiving a message id
// overwrites the earlier row, which makes retries harmless.
func (s *Store) Save(sessionID string, msg chat.Message) error {
	var citations string
	if len(msg.Citations) > 0 {
		b, err := json.Marshal(msg.Citations)
		if err != nil {
			return fmt.Errorf("marshal citations: %w", err)
		}
		citations = string(b)
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO messages (id, session_id, role, content, citations, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID,
		sessionID,
		string(msg.Role),
		msg.Content,
		citations,
		msg.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// ListSession returns the messages of one session in chronological order.
func (s *Store) ListSession(sessionID string) ([]chat.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, role, content, citations, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session: %w", err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var msg chat.Message
		var role, citations, createdAt string
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &citations, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = chat.Role(role)
		msg.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)
		if citations != "" {
			msg.Citations = chat.NormalizeCitations(json.RawMessage(citations))
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// SessionInfo summarizes one archived session.
type SessionInfo struct {
	ID           string    `json:"id"`
	FirstPrompt  string    `json:"firstPrompt,omitempty"`
	LastActivity time.Time `json:"lastActivity"`
	Messages     int       `json:"messages"`
}

// Sessions lists archived sessions, newest activity first.
func (s *Store) Sessions(limit int) ([]SessionInfo, error) {
	query := `
		SELECT m.session_id,
		       COALESCE((SELECT content FROM messages
		                 WHERE session_id = m.session_id AND role = 'user'
		                 ORDER BY created_at, rowid LIMIT 1), '') AS first_prompt,
		       MAX(m.created_at) AS last_activity,
		       COUNT(*) AS message_count
		FROM messages m
		GROUP BY m.session_id
		ORDER BY last_activity DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var lastActivity string
		if err := rows.Scan(&info.ID, &info.FirstPrompt, &lastActivity, &info.Messages); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		info.LastActivity, _ = time.Parse(time.RFC3339Nano, lastActivity)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
