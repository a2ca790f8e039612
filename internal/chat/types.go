// Package chat holds the conversation state of the app: the ordered message
// transcript, the citation panel, the session grouping logic and the
// assembler that turns backend answers into rendered messages.
package chat

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Citation is a structured reference to a source document backing part of an
// assistant answer. SourceNumber is the 1-based marker rendered inline in the
// answer text.
type Citation struct {
	SourceNumber    int     `json:"sourceNumber"`
	Filename        string  `json:"filename"`
	PageNumber      int     `json:"pageNumber,omitempty"`
	LineRange       string  `json:"lineRange,omitempty"`
	SnippetText     string  `json:"snippetText,omitempty"`
	SimilarityScore float64 `json:"similarityScore"`
}

// Message is a single entry in the conversation transcript.
type Message struct {
	ID        string     `json:"id,omitempty"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	Citations []Citation `json:"citations,omitempty"`
}

// Session is a reconstructed conversation thread, derived from flat history
// rows by GroupSessions.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	LastActivity time.Time `json:"lastActivity"`
	Messages     []Message `json:"messages"`
}

// HistoryItem is one flat history row as returned by a response source.
// Citations is kept raw because sources disagree on its shape; it is
// normalized by NormalizeCitations during grouping.
type HistoryItem struct {
	ID        string          `json:"id,omitempty"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"createdAt"`
	SessionID string          `json:"sessionId"`
	Citations json.RawMessage `json:"citations,omitempty"`
}
