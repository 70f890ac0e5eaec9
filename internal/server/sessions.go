package server

import (
	"net/http"
	"time"

	"github.com/repochat/repochat/pkg/types"
)

type sessionResponse struct {
	ID           string          `json:"id"`
	CodebaseID   string          `json:"codebase_id"`
	Title        string          `json:"title,omitempty"`
	MessageCount int             `json:"message_count"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Messages     []types.Message `json:"messages,omitempty"`
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	session, err := s.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := sessionResponse{
		ID:           session.ID,
		CodebaseID:   session.CodebaseID,
		Title:        session.Title,
		MessageCount: session.MessageCount(),
		CreatedAt:    session.CreatedAt,
		UpdatedAt:    session.UpdatedAt,
	}
	if r.URL.Query().Get("include_messages") != "false" {
		resp.Messages = session.Messages
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSessionsByCodebase(w http.ResponseWriter, r *http.Request) {
	codebaseID := r.PathValue("id")
	if _, err := s.pipeline.Status(r.Context(), codebaseID); err != nil {
		s.writeError(w, err)
		return
	}

	summaries, err := s.store.ListSessions(r.Context(), codebaseID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"sessions": summaries,
		"total":    len(summaries),
	})
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
