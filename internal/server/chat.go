package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/repochat/repochat/internal/stream"
)

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, fmt.Errorf("%w: message cannot be empty", errBadRequest))
		return
	}

	result, err := s.orch.Chat(r.Context(), r.PathValue("codebase"), r.PathValue("session"), req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, fmt.Errorf("%w: message cannot be empty", errBadRequest))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSON(w, http.StatusInternalServerError,
			errorResponse{Error: "internal", Detail: "streaming unsupported"})
		return
	}

	ch := stream.NewChannel(16)
	frames, err := ch.Frames()
	if err != nil {
		s.writeError(w, err)
		return
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.orch.ChatStream(r.Context(), r.PathValue("codebase"), r.PathValue("session"), req.Message, ch)
	}()

	// A turn that fails before any output produces a single error frame.
	// Report those as a normal JSON error instead of an empty stream.
	first, ok := <-frames
	if !ok {
		s.writeError(w, <-errCh)
		return
	}
	if first.Type == stream.FrameError {
		s.writeError(w, <-errCh)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.writeSSEFrame(w, first)
	flusher.Flush()
	for f := range frames {
		s.writeSSEFrame(w, f)
		flusher.Flush()
	}
}

// writeSSEFrame renders one frame as an SSE event. Chunk content is split on
// newlines so multi-line fragments stay within the wire format.
func (s *Server) writeSSEFrame(w io.Writer, f stream.Frame) {
	switch f.Type {
	case stream.FrameChunk:
		for _, line := range strings.Split(f.Content, "\n") {
			fmt.Fprintf(w, "data: %s\n", line)
		}
		io.WriteString(w, "\n")
	case stream.FrameDone:
		io.WriteString(w, "data: [DONE]\n\n")
	case stream.FrameError:
		io.WriteString(w, "event: error\n")
		for _, line := range strings.Split(f.Message, "\n") {
			fmt.Fprintf(w, "data: %s\n", line)
		}
		io.WriteString(w, "\n")
		s.log.Warn("stream aborted", "error", f.Message)
	}
}
