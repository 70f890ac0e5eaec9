package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/repochat/repochat/internal/logger"
	"github.com/repochat/repochat/internal/orchestrator"
	"github.com/repochat/repochat/internal/pipeline"
	"github.com/repochat/repochat/internal/storage"
	"github.com/repochat/repochat/pkg/types"
)

// Server wires the pipeline, orchestrator, and session store to HTTP.
type Server struct {
	pipeline *pipeline.Pipeline
	orch     *orchestrator.Orchestrator
	store    storage.Storage
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// New creates a Server.
func New(p *pipeline.Pipeline, orch *orchestrator.Orchestrator, store storage.Storage, log *logger.Logger) *Server {
	return &Server{
		pipeline: p,
		orch:     orch,
		store:    store,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /ingest", s.handleIngestCreate)
	mux.HandleFunc("GET /ingest", s.handleIngestList)
	mux.HandleFunc("GET /ingest/{id}", s.handleIngestGet)
	mux.HandleFunc("DELETE /ingest/{id}", s.handleIngestDelete)

	mux.HandleFunc("POST /chat/{codebase}/{session}", s.handleChat)
	mux.HandleFunc("POST /chat/{codebase}/{session}/stream", s.handleChatStream)
	mux.HandleFunc("GET /ws/chat/{codebase}/{session}", s.handleChatWS)

	mux.HandleFunc("GET /sessions/{id}", s.handleSessionGet)
	mux.HandleFunc("GET /sessions/codebase/{id}", s.handleSessionsByCodebase)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleSessionDelete)

	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// NewHTTPServer wraps the handler in an http.Server. WriteTimeout stays
// unset so SSE and WebSocket connections can outlive ordinary requests.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to encode response", "error", err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err.Error())
	}
	s.writeJSON(w, status, errorResponse{Error: code, Detail: err.Error()})
}

// statusFor maps taxonomy errors to HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrInvalidRepoURL):
		return http.StatusBadRequest, "invalid_repo_url"
	case errors.Is(err, types.ErrCodebaseNotFound),
		errors.Is(err, types.ErrSessionNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, types.ErrCodebaseNotReady):
		return http.StatusConflict, "not_ready"
	case errors.Is(err, types.ErrStreamBusy),
		errors.Is(err, types.ErrIngestInProgress):
		return http.StatusConflict, "busy"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("invalid request body")

func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
