package server

import (
	"net/http"
	"time"

	"github.com/repochat/repochat/pkg/types"
)

type ingestRequest struct {
	RepoURL string `json:"repo_url"`
	Force   bool   `json:"force,omitempty"`
}

type ingestResponse struct {
	CodebaseID   string             `json:"codebase_id"`
	RepoURL      string             `json:"repo_url"`
	Status       types.IngestStatus `json:"status"`
	FileCount    int                `json:"file_count"`
	ChunkCount   int                `json:"chunk_count"`
	ErrorMessage string             `json:"error_message,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	IndexedAt    *time.Time         `json:"indexed_at,omitempty"`
}

func toIngestResponse(cb *types.Codebase) ingestResponse {
	return ingestResponse{
		CodebaseID:   cb.ID,
		RepoURL:      cb.RepoURL.String(),
		Status:       cb.Status,
		FileCount:    cb.FileCount,
		ChunkCount:   cb.ChunkCount,
		ErrorMessage: cb.ErrorMessage,
		CreatedAt:    cb.CreatedAt,
		IndexedAt:    cb.IndexedAt,
	}
}

func (s *Server) handleIngestCreate(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	cb, err := s.pipeline.StartIngest(r.Context(), req.RepoURL, req.Force)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toIngestResponse(cb))
}

func (s *Server) handleIngestGet(w http.ResponseWriter, r *http.Request) {
	cb, err := s.pipeline.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toIngestResponse(cb))
}

func (s *Server) handleIngestList(w http.ResponseWriter, r *http.Request) {
	codebases, err := s.pipeline.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]ingestResponse, len(codebases))
	for i, cb := range codebases {
		out[i] = toIngestResponse(cb)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"codebases": out,
		"total":     len(out),
	})
}

func (s *Server) handleIngestDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
