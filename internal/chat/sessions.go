package chat

import (
	"encoding/json"
	"sort"
)

const (
	titleRuneLimit = 30
	fallbackTitle  = "New Chat"
	titleEllipsis  = "..."
)

// GroupSessions rebuilds conversation threads from the flat history rows a
// response source returns. Rows are ordered chronologically, partitioned by
// session id, titled after each thread's first user message and returned
// newest-activity first. Rows without a session id cannot be grouped and are
// dropped. Grouping is a pure function of its input: feeding it the same
// rows again yields the same sessions.
func GroupSessions(items []HistoryItem) []Session {
	sorted := make([]HistoryItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	index := make(map[string]int)
	sessions := make([]Session, 0)
	for _, item := range sorted {
		if item.SessionID == "" {
			continue
		}
		msg := Message{
			ID:        item.ID,
			Role:      Role(item.Role),
			Content:   item.Content,
			Timestamp: item.CreatedAt,
			Citations: NormalizeCitations(item.Citations),
		}
		i, ok := index[item.SessionID]
		if !ok {
			index[item.SessionID] = len(sessions)
			sessions = append(sessions, Session{ID: item.SessionID})
			i = len(sessions) - 1
		}
		sessions[i].Messages = append(sessions[i].Messages, msg)
		sessions[i].LastActivity = msg.Timestamp
	}

	for i := range sessions {
		sessions[i].Title = sessionTitle(sessions[i].Messages)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
	return sessions
}

// sessionTitle derives a thread title from its first user message.
func sessionTitle(msgs []Message) string {
	for _, m := range msgs {
		if m.Role == RoleUser {
			return truncateTitle(m.Content)
		}
	}
	return fallbackTitle
}

// truncateTitle shortens long prompts to a list-friendly length. Counting is
// rune-based so multi-byte prompts are never cut mid-character.
func truncateTitle(s string) string {
	runes := []rune(s)
	if len(runes) <= titleRuneLimit {
		return s
	}
	return string(runes[:titleRuneLimit]) + titleEllipsis
}

// NormalizeCitations coerces the citation payload of a history row into a
// citation list. Sources emit either a bare array or an object wrapping the
// array under "sources" or "citations"; anything else, including absent or
// null payloads, normalizes to no citations. It never fails.
func NormalizeCitations(raw json.RawMessage) []Citation {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var list []Citation
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var wrapped struct {
		Sources   []Citation `json:"sources"`
		Citations []Citation `json:"citations"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		if len(wrapped.Sources) > 0 {
			return wrapped.Sources
		}
		if len(wrapped.Citations) > 0 {
			return wrapped.Citations
		}
	}
	return nil
}
