package server

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/repochat/repochat/internal/stream"
)

type wsRequest struct {
	Message string `json:"message"`
}

// handleChatWS serves streamed chat turns over one WebSocket connection.
// Each client {message} produces chunk frames followed by exactly one done
// or error frame.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	codebaseID := r.PathValue("codebase")
	sessionID := r.PathValue("session")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err.Error())
		return
	}
	defer func() { _ = conn.Close() }()

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("websocket read ended", "session_id", sessionID, "error", err.Error())
			}
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			continue
		}

		ch := stream.NewChannel(16)
		frames, err := ch.Frames()
		if err != nil {
			return
		}
		go func() {
			_ = s.orch.ChatStream(r.Context(), codebaseID, sessionID, req.Message, ch)
		}()

		for f := range frames {
			if err := conn.WriteJSON(f); err != nil {
				s.log.Debug("websocket write failed", "session_id", sessionID, "error", err.Error())
				// Keep consuming until the producer closes the channel so
				// its sends never block on a full buffer.
				for range frames {
				}
				return
			}
		}
	}
}
