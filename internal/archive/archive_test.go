package archive

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nelsonwm45/senti-mochi-go/internal/chat"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func at(minute int) time.Time {
	return time.Date(2026, 6, 1, 10, minute, 0, 0, time.UTC)
}

// TestStoreSaveAndListSession verifies the round trip including citations.
func TestStoreSaveAndListSession(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save("sess-1", chat.Message{
		ID: "m1", Role: chat.RoleUser, Content: "Summarize the filing", Timestamp: at(0),
	}))
	require.NoError(t, store.Save("sess-1", chat.Message{
		ID: "m2", Role: chat.RoleAssistant, Content: "It flags three risks.", Timestamp: at(1),
		Citations: []chat.Citation{{SourceNumber: 1, Filename: "risk_report.pdf", SimilarityScore: 0.87}},
	}))
	require.NoError(t, store.Save("sess-2", chat.Message{
		ID: "m3", Role: chat.RoleUser, Content: "Other session", Timestamp: at(2),
	}))

	msgs, err := store.ListSession("sess-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	require.Equal(t, "m1", msgs[0].ID)
	require.Equal(t, chat.RoleUser, msgs[0].Role)
	require.Equal(t, "Summarize the filing", msgs[0].Content)
	require.True(t, msgs[0].Timestamp.Equal(at(0)))
	require.Empty(t, msgs[0].Citations)

	require.Equal(t, chat.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Citations, 1)
	require.Equal(t, "risk_report.pdf", msgs[1].Citations[0].Filename)
	require.Equal(t, 0.87, msgs[1].Citations[0].SimilarityScore)
}

// TestStoreSave_OverwritesSameID verifies re-archiving a message id replaces
// the row instead of duplicating it.
func TestStoreSave_OverwritesSameID(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save("sess-1", chat.Message{
		ID: "m1", Role: chat.RoleAssistant, Content: "draft", Timestamp: at(0),
	}))
	require.NoError(t, store.Save("sess-1", chat.Message{
		ID: "m1", Role: chat.RoleAssistant, Content: "final", Timestamp: at(0),
	}))

	msgs, err := store.ListSession("sess-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "final", msgs[0].Content)
}

// TestStoreListSession_OrdersByTime verifies rows come back chronologically
// regardless of insert order.
func TestStoreListSession_OrdersByTime(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save("sess-1", chat.Message{ID: "m2", Role: chat.RoleAssistant, Content: "second", Timestamp: at(5)}))
	require.NoError(t, store.Save("sess-1", chat.Message{ID: "m1", Role: chat.RoleUser, Content: "first", Timestamp: at(0)}))

	msgs, err := store.ListSession("sess-1")
	require.NoError(t, err)
	require.Equal(t, "first", msgs[0].Content)
	require.Equal(t, "second", msgs[1].Content)
}

// TestStoreSessions verifies the summary listing: newest first, first user
// prompt and message counts.
func TestStoreSessions(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save("sess-old", chat.Message{ID: "o1", Role: chat.RoleUser, Content: "Old question", Timestamp: at(0)}))
	require.NoError(t, store.Save("sess-old", chat.Message{ID: "o2", Role: chat.RoleAssistant, Content: "Old answer", Timestamp: at(1)}))
	require.NoError(t, store.Save("sess-new", chat.Message{ID: "n1", Role: chat.RoleUser, Content: "New question", Timestamp: at(30)}))

	infos, err := store.Sessions(0)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	require.Equal(t, "sess-new", infos[0].ID)
	require.Equal(t, "New question", infos[0].FirstPrompt)
	require.Equal(t, 1, infos[0].Messages)

	require.Equal(t, "sess-old", infos[1].ID)
	require.Equal(t, "Old question", infos[1].FirstPrompt)
	require.Equal(t, 2, infos[1].Messages)
	require.True(t, infos[1].LastActivity.Equal(at(1)))
}

// TestStoreSessions_Limit verifies the limit caps the listing.
func TestStoreSessions_Limit(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save("sess-a", chat.Message{ID: "a1", Role: chat.RoleUser, Content: "a", Timestamp: at(0)}))
	require.NoError(t, store.Save("sess-b", chat.Message{ID: "b1", Role: chat.RoleUser, Content: "b", Timestamp: at(1)}))

	infos, err := store.Sessions(1)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, "sess-b", infos[0].ID)
}

// TestStoreListSession_Empty verifies an unknown session yields no rows and
// no error.
func TestStoreListSession_Empty(t *testing.T) {
	store := newTestStore(t)

	msgs, err := store.ListSession("sess-none")
	require.NoError(t, err)
	require.Empty(t, msgs)
}
