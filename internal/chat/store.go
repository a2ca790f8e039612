package chat

import (
	"errors"
	"sync"
)

var (
	// ErrEmptyStore is returned by ReplaceLast when there is nothing to replace.
	ErrEmptyStore = errors.New("message store is empty")
	// ErrLastNotAssistant is returned by ReplaceLast when the newest message
	// was not written by the assistant.
	ErrLastNotAssistant = errors.New("last message is not an assistant message")
)

// Store is the ordered in-memory transcript of the active conversation.
// All methods are safe for concurrent use; Messages returns a copy so
// callers never observe a slice being mutated underneath them.
type Store struct {
	mu   sync.RWMutex
	msgs []Message
}

// NewStore returns an empty message store.
func NewStore() *Store {
	return &Store{}
}

// Append adds a message to the end of the transcript.
func (s *Store) Append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

// ReplaceLast swaps the content of the newest message in place, preserving
// its identity, role and timestamp. It only applies to an assistant message,
// which is the streaming placeholder being filled in.
func (s *Store) ReplaceLast(content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.msgs) == 0 {
		return ErrEmptyStore
	}
	last := &s.msgs[len(s.msgs)-1]
	if last.Role != RoleAssistant {
		return ErrLastNotAssistant
	}
	last.Content = content
	return nil
}

// SetLastID rebinds the newest assistant message to the id its source
// assigned once the stream finished.
func (s *Store) SetLastID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.msgs) == 0 {
		return ErrEmptyStore
	}
	last := &s.msgs[len(s.msgs)-1]
	if last.Role != RoleAssistant {
		return ErrLastNotAssistant
	}
	last.ID = id
	return nil
}

// Clear removes every message.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = nil
}

// Reset replaces the whole transcript, e.g. when loading a past session.
func (s *Store) Reset(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append([]Message(nil), msgs...)
}

// Messages returns a copy of the transcript in insertion order.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Last returns the newest message, if any.
func (s *Store) Last() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.msgs) == 0 {
		return Message{}, false
	}
	return s.msgs[len(s.msgs)-1], true
}

// Len returns the number of messages in the transcript.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}
