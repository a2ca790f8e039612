package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/nelsonwm45/senti-mochi-go/internal/chat"
	"github.com/nelsonwm45/senti-mochi-go/internal/logger"
)

// wsFrame is one server-to-client websocket message. Type is one of stage,
// delta, message, done or error; only the matching field is populated.
type wsFrame struct {
	Type      string        `json:"type"`
	Stage     chat.Stage    `json:"stage,omitempty"`
	Delta     string        `json:"delta,omitempty"`
	Message   *chat.Message `json:"message,omitempty"`
	SessionID string        `json:"sessionId,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// handleWS accepts one query per connection: the client sends a single text
// frame with the question, receives progress, delta and message frames while
// the answer is assembled, and the connection closes after a final done
// frame. All writes happen from this goroutine, keeping them ordered.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx := r.Context()
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	if typ != websocket.MessageText {
		conn.Close(websocket.StatusUnsupportedData, "unsupported data")
		return
	}

	var req struct {
		Content   string `json:"content"`
		Streaming *bool  `json:"streaming"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		s.writeFrame(ctx, conn, wsFrame{Type: "error", Error: "invalid json"})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.writeFrame(ctx, conn, wsFrame{Type: "error", Error: "content must not be blank"})
		return
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.writeFrame(ctx, conn, wsFrame{Type: "error", Error: "a response is already pending"})
		conn.Close(websocket.StatusPolicyViolation, "busy")
		return
	}
	defer s.busy.Store(false)

	streaming := s.opts.Streaming
	if req.Streaming != nil {
		streaming = *req.Streaming
	}

	obs := &chat.Observer{
		OnStage: func(stage chat.Stage) {
			s.writeFrame(ctx, conn, wsFrame{Type: "stage", Stage: stage})
		},
		OnDelta: func(delta string) {
			s.writeFrame(ctx, conn, wsFrame{Type: "delta", Delta: delta})
		},
		OnMessage: func(msg chat.Message) {
			s.writeFrame(ctx, conn, wsFrame{Type: "message", Message: &msg})
		},
	}
	s.conv.Send(ctx, req.Content, streaming, obs)

	s.writeFrame(ctx, conn, wsFrame{Type: "done", SessionID: s.conv.SessionID()})
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) writeFrame(ctx context.Context, conn *websocket.Conn, frame wsFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		logger.L.Debugw("websocket write failed", "type", frame.Type, "error", err)
	}
}
