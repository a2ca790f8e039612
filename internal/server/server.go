// Package server exposes the conversation, watchlist and news relay over
// HTTP for the browser UI.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nelsonwm45/senti-mochi-go/internal/archive"
	"github.com/nelsonwm45/senti-mochi-go/internal/chat"
	"github.com/nelsonwm45/senti-mochi-go/internal/logger"
	"github.com/nelsonwm45/senti-mochi-go/internal/news"
	"github.com/nelsonwm45/senti-mochi-go/internal/watchlist"
)

// SessionDeleter removes a session from the authoritative history. Only the
// retrieval backend can do this, so it is nil when running without one.
type SessionDeleter interface {
	DeleteSession(ctx context.Context, sessionID string) error
}

// Options wires the optional surfaces of the server.
type Options struct {
	// Streaming is the default answer mode for websocket sends.
	Streaming bool
	Deleter   SessionDeleter
	Watchlist *watchlist.Store
	News      *news.Client
	Archive   *archive.Store
}

// Server handles the HTTP API. It serializes sends: the conversation is a
// single-writer pipeline, so a second send while one is pending is rejected
// with 409 rather than interleaved.
type Server struct {
	conv *chat.Conversation
	opts Options
	busy atomic.Bool
}

// New creates a server around the conversation.
func New(conv *chat.Conversation, opts Options) *Server {
	return &Server{conv: conv, opts: opts}
}

// Router builds the HTTP routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(api chi.Router) {
		// The websocket stays outside the timeout group; a streamed answer
		// plus its display delays can legitimately outlive any REST deadline.
		api.Get("/chat/ws", s.handleWS)

		api.Group(func(g chi.Router) {
			g.Use(middleware.Timeout(60 * time.Second))

			g.Post("/chat/messages", s.handleSendMessage)
			g.Get("/chat/current", s.handleCurrent)
			g.Post("/chat/clear", s.handleClear)
			g.Get("/chat/sessions", s.handleListSessions)
			g.Post("/chat/sessions/{sessionID}/load", s.handleLoadSession)
			g.Delete("/chat/sessions/{sessionID}", s.handleDeleteSession)
			g.Post("/chat/citations/click", s.handleCitationClick)
			g.Post("/feedback", s.handleFeedback)

			if s.opts.Archive != nil {
				g.Get("/chat/archive", s.handleArchiveList)
				g.Get("/chat/archive/{sessionID}", s.handleArchiveSession)
			}
			if s.opts.Watchlist != nil {
				g.Get("/watchlist", s.handleWatchlist)
				g.Post("/watchlist", s.handleWatchlistAdd)
				g.Delete("/watchlist/{symbol}", s.handleWatchlistRemove)
			}
			if s.opts.News != nil {
				g.Get("/news/{endpoint}", s.handleNews)
			}
		})
	})
	r.Get("/health", s.handleHealth)
	return r
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "content must not be blank", http.StatusBadRequest)
		return
	}
	if !s.busy.CompareAndSwap(false, true) {
		http.Error(w, "a response is already pending", http.StatusConflict)
		return
	}
	defer s.busy.Store(false)

	msg := s.conv.Send(r.Context(), req.Content, false, nil)
	if msg == nil {
		http.Error(w, "content must not be blank", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   msg,
		"sessionId": s.conv.SessionID(),
		"citations": s.conv.Citations(),
	})
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Messages           []chat.Message  `json:"messages"`
		SessionID          string          `json:"sessionId"`
		Stage              chat.Stage      `json:"stage"`
		Citations          []chat.Citation `json:"citations"`
		ActiveSourceNumber *int            `json:"activeSourceNumber,omitempty"`
	}{
		Messages:  s.conv.Messages(),
		SessionID: s.conv.SessionID(),
		Stage:     s.conv.Stage(),
		Citations: s.conv.Citations(),
	}
	if n, ok := s.conv.ActiveCitation(); ok {
		resp.ActiveSourceNumber = &n
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.conv.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.conv.Sessions(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleLoadSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.conv.LoadSession(r.Context(), chi.URLParam(r, "sessionID"))
	if errors.Is(err, chat.ErrSessionNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if s.opts.Deleter == nil {
		http.Error(w, "session deletion requires a backend", http.StatusNotImplemented)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	err := s.opts.Deleter.DeleteSession(r.Context(), sessionID)
	if errors.Is(err, chat.ErrSessionNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if sessionID == s.conv.SessionID() {
		s.conv.Clear()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCitationClick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceNumber int `json:"sourceNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.conv.ClickCitation(req.SourceNumber)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID string `json:"messageId"`
		Rating    int    `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.MessageID == "" {
		http.Error(w, "messageId is required", http.StatusBadRequest)
		return
	}
	s.conv.SubmitFeedback(req.MessageID, req.Rating)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleArchiveList(w http.ResponseWriter, r *http.Request) {
	infos, err := s.opts.Archive.Sessions(50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleArchiveSession(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.opts.Archive.ListSession(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(msgs) == 0 {
		http.Error(w, "session not archived", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.opts.Watchlist.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []watchlist.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleWatchlistAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	symbol := watchlist.Normalize(req.Symbol)
	if symbol == "" {
		http.Error(w, "symbol must not be blank", http.StatusBadRequest)
		return
	}
	added, err := s.opts.Watchlist.Add(symbol)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"symbol": symbol, "added": added})
}

func (s *Server) handleWatchlistRemove(w http.ResponseWriter, r *http.Request) {
	removed, err := s.opts.Watchlist.Remove(chi.URLParam(r, "symbol"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !removed {
		http.Error(w, "symbol not in watchlist", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	endpoint := chi.URLParam(r, "endpoint")
	if !s.opts.News.Allowed(endpoint) {
		http.Error(w, "unknown news endpoint", http.StatusNotFound)
		return
	}
	body, status, err := s.opts.News.Fetch(r.Context(), endpoint, r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logger.L.Debugw("news relay write failed", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L.Warnw("response encode failed", "error", err)
	}
}
