package chat

import (
	"context"
	"errors"
)

// ErrNoRelevantData is returned by a response source when the knowledge base
// holds nothing useful for the query. The assembler renders it as a softer
// fallback message than a generic failure.
var ErrNoRelevantData = errors.New("no relevant information available")

// Answer is a complete non-streamed reply from a response source.
type Answer struct {
	MessageID string     `json:"messageId,omitempty"`
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
	SessionID string     `json:"sessionId"`
}

// StreamEventType discriminates the events of a streamed reply.
type StreamEventType int

const (
	// StreamDelta carries the next chunk of answer text.
	StreamDelta StreamEventType = iota
	// StreamDone marks a successful end of stream.
	StreamDone
	// StreamError marks an aborted stream.
	StreamError
)

// StreamEvent is one event of a streamed reply. A stream ends with exactly
// one StreamDone or StreamError event, after which the channel is closed.
type StreamEvent struct {
	Type      StreamEventType
	Delta     string
	SessionID string
	MessageID string
	Err       error
}

// ResponseSource produces answers for user queries and serves the flat
// conversation history they accumulate. The channel returned by Stream must
// be consumed until it closes, even by callers that stop caring about the
// answer, so the source can release its connection.
type ResponseSource interface {
	Ask(ctx context.Context, query, sessionID string) (*Answer, error)
	Stream(ctx context.Context, query, sessionID string) (<-chan StreamEvent, error)
	FetchHistory(ctx context.Context, limit int) ([]HistoryItem, error)
	SubmitFeedback(ctx context.Context, messageID string, rating int) error
}

// Archiver receives a copy of every settled exchange for local persistence.
type Archiver interface {
	Save(sessionID string, msg Message) error
}
