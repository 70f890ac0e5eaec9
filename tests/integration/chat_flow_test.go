package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/repochat/repochat/internal/chunker"
	"github.com/repochat/repochat/internal/embedder"
	"github.com/repochat/repochat/internal/llm"
	"github.com/repochat/repochat/internal/logger"
	"github.com/repochat/repochat/internal/orchestrator"
	"github.com/repochat/repochat/internal/pipeline"
	"github.com/repochat/repochat/internal/server"
	"github.com/repochat/repochat/internal/storage"
	"github.com/repochat/repochat/internal/vectorindex"
	"github.com/repochat/repochat/pkg/types"
)

// dirCloner copies a prepared directory in place of a real git clone.
type dirCloner struct {
	src  string
	dest string
}

func (c *dirCloner) Clone(_ context.Context, _ types.RepoURL, id string) (string, error) {
	target := filepath.Join(c.dest, id)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", err
	}
	entries, err := os.ReadDir(c.src)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(c.src, e.Name()))
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(filepath.Join(target, e.Name()), data, 0o644); err != nil {
			return "", err
		}
	}
	return target, nil
}

// ChatFlowTestSuite exercises the whole stack end to end: ingestion through
// the HTTP API, then chat turns against the indexed codebase.
type ChatFlowTestSuite struct {
	suite.Suite
	ctx      context.Context
	store    *storage.SQLiteStorage
	pipeline *pipeline.Pipeline
	handler  http.Handler
}

func (s *ChatFlowTestSuite) SetupTest() {
	s.ctx = context.Background()

	src := s.T().TempDir()
	files := map[string]string{
		"main.go":    "package main\n\nfunc main() {\n\trun()\n}\n",
		"runner.go":  "package main\n\n// run starts the worker loop.\nfunc run() {\n\tfor {\n\t\tbreak\n\t}\n}\n",
		"README.md":  "# worker\n\nA looping worker demo.\n",
		"logo.woff2": "binary-ish",
	}
	for name, content := range files {
		s.Require().NoError(os.WriteFile(filepath.Join(src, name), []byte(content), 0o644))
	}

	store, err := storage.NewSQLiteStorage(filepath.Join(s.T().TempDir(), "repochat.db"))
	s.Require().NoError(err)
	s.store = store

	emb := embedder.NewHashProvider(embedder.NewCache(256))
	indexes := vectorindex.NewManager(store)
	log := logger.NewWithOutput(io.Discard, logger.LevelError)

	s.pipeline = pipeline.New(store, &dirCloner{src: src, dest: s.T().TempDir()},
		chunker.New(chunker.DefaultMaxChunkBytes), emb, indexes, log, 2)
	orch := orchestrator.New(store, indexes, emb,
		llm.Static{Content: "run starts the worker loop."}, log, orchestrator.Options{})

	s.handler = server.New(s.pipeline, orch, store, log).Handler()
}

func (s *ChatFlowTestSuite) TearDownTest() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

func (s *ChatFlowTestSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *ChatFlowTestSuite) ingest() string {
	rec := s.do(http.MethodPost, "/ingest", `{"repo_url": "https://github.com/acme/worker"}`)
	s.Require().Equal(http.StatusCreated, rec.Code)

	var resp struct {
		CodebaseID string `json:"codebase_id"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.pipeline.Wait()
	return resp.CodebaseID
}

func (s *ChatFlowTestSuite) TestIngestThenChat() {
	id := s.ingest()

	rec := s.do(http.MethodGet, "/ingest/"+id, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var status struct {
		Status    string `json:"status"`
		FileCount int    `json:"file_count"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	s.Equal("completed", status.Status)
	s.Equal(3, status.FileCount)

	rec = s.do(http.MethodPost, "/chat/"+id+"/sess-1", `{"message": "what does run do?"}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	var chat struct {
		SessionID string `json:"session_id"`
		Message   struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		Sources []types.SourceRef `json:"sources"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &chat))
	s.Equal("sess-1", chat.SessionID)
	s.Equal("assistant", chat.Message.Role)
	s.Equal("run starts the worker loop.", chat.Message.Content)
	s.NotEmpty(chat.Sources)

	session, err := s.store.GetSession(s.ctx, "sess-1")
	s.Require().NoError(err)
	s.Len(session.Messages, 2)
	s.Equal("what does run do?", session.Title)
}

func (s *ChatFlowTestSuite) TestChatBeforeIngestCompletes() {
	rec := s.do(http.MethodPost, "/chat/missing/sess-1", `{"message": "hello"}`)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ChatFlowTestSuite) TestStreamedChatMatchesPersistedContent() {
	id := s.ingest()

	rec := s.do(http.MethodPost, "/chat/"+id+"/sess-2/stream", `{"message": "what does run do?"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("text/event-stream", rec.Header().Get("Content-Type"))

	var fragments []string
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok || data == "[DONE]" {
			continue
		}
		fragments = append(fragments, data)
	}
	streamed := strings.Join(fragments, "\n")

	session, err := s.store.GetSession(s.ctx, "sess-2")
	s.Require().NoError(err)
	s.Require().Len(session.Messages, 2)
	s.Equal(session.Messages[1].Content, streamed)
}

func (s *ChatFlowTestSuite) TestReingestKeepsSessions() {
	id := s.ingest()

	rec := s.do(http.MethodPost, "/chat/"+id+"/sess-3", `{"message": "what does run do?"}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/ingest", `{"repo_url": "https://github.com/acme/worker", "force": true}`)
	s.Require().Equal(http.StatusCreated, rec.Code)
	s.pipeline.Wait()

	rec = s.do(http.MethodGet, "/sessions/codebase/"+id, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var list struct {
		Total int `json:"total"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &list))
	s.Equal(1, list.Total)
}

func (s *ChatFlowTestSuite) TestDeleteCodebaseRemovesEverything() {
	id := s.ingest()

	rec := s.do(http.MethodPost, "/chat/"+id+"/sess-4", `{"message": "what does run do?"}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodDelete, "/ingest/"+id, "")
	s.Require().Equal(http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/ingest/"+id, "")
	s.Equal(http.StatusNotFound, rec.Code)

	_, err := s.store.GetSession(s.ctx, "sess-4")
	s.ErrorIs(err, types.ErrSessionNotFound)
}

func TestChatFlowTestSuite(t *testing.T) {
	suite.Run(t, new(ChatFlowTestSuite))
}
