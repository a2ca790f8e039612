package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestStoreAppend_PreservesOrderAndIsolation verifies insertion order and that
// the returned slice is a copy.
func TestStoreAppend_PreservesOrderAndIsolation(t *testing.T) {
	s := NewStore()
	s.Append(Message{ID: "u1", Role: RoleUser, Content: "hello"})
	s.Append(Message{ID: "a1", Role: RoleAssistant, Content: "hi"})

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "u1", msgs[0].ID)
	require.Equal(t, "a1", msgs[1].ID)

	msgs[0].Content = "mutated"
	require.Equal(t, "hello", s.Messages()[0].Content)
}

// TestStoreReplaceLast_KeepsIdentity verifies that only the content changes.
func TestStoreReplaceLast_KeepsIdentity(t *testing.T) {
	s := NewStore()
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s.Append(Message{ID: "u1", Role: RoleUser, Content: "question"})
	s.Append(Message{ID: "a1", Role: RoleAssistant, Content: "partial", Timestamp: ts})

	require.NoError(t, s.ReplaceLast("partial answer"))

	last, ok := s.Last()
	require.True(t, ok)
	require.Equal(t, "a1", last.ID)
	require.Equal(t, RoleAssistant, last.Role)
	require.Equal(t, "partial answer", last.Content)
	require.Equal(t, ts, last.Timestamp)
	require.Equal(t, 2, s.Len())
}

// TestStoreReplaceLast_Guards verifies the empty-store and wrong-role guards.
func TestStoreReplaceLast_Guards(t *testing.T) {
	s := NewStore()
	require.ErrorIs(t, s.ReplaceLast("anything"), ErrEmptyStore)

	s.Append(Message{ID: "u1", Role: RoleUser, Content: "question"})
	require.ErrorIs(t, s.ReplaceLast("anything"), ErrLastNotAssistant)
	require.Equal(t, "question", s.Messages()[0].Content)
}

// TestStoreSetLastID rebinds the tail assistant message to a new id.
func TestStoreSetLastID(t *testing.T) {
	s := NewStore()
	require.ErrorIs(t, s.SetLastID("m-1"), ErrEmptyStore)

	s.Append(Message{ID: "u1", Role: RoleUser})
	require.ErrorIs(t, s.SetLastID("m-1"), ErrLastNotAssistant)

	s.Append(Message{ID: "local", Role: RoleAssistant})
	require.NoError(t, s.SetLastID("m-1"))
	last, _ := s.Last()
	require.Equal(t, "m-1", last.ID)
}

// TestStoreClearAndReset covers wiping and wholesale replacement.
func TestStoreClearAndReset(t *testing.T) {
	s := NewStore()
	s.Append(Message{ID: "u1", Role: RoleUser})
	s.Clear()
	require.Zero(t, s.Len())
	_, ok := s.Last()
	require.False(t, ok)

	loaded := []Message{
		{ID: "u2", Role: RoleUser, Content: "old question"},
		{ID: "a2", Role: RoleAssistant, Content: "old answer"},
	}
	s.Reset(loaded)
	require.Len(t, s.Messages(), 2)

	loaded[0].Content = "mutated"
	require.Equal(t, "old question", s.Messages()[0].Content)
}
