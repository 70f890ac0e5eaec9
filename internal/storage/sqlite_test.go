package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repochat/repochat/pkg/types"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestCodebase(t *testing.T, rawURL string) *types.Codebase {
	t.Helper()
	repoURL, err := types.ParseRepoURL(rawURL)
	require.NoError(t, err)
	return &types.Codebase{
		ID:        uuid.NewString(),
		RepoURL:   repoURL,
		Status:    types.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCodebaseRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	cb := newTestCodebase(t, "https://github.com/golang/go")
	require.NoError(t, s.CreateCodebase(ctx, cb))

	got, err := s.GetCodebase(ctx, cb.ID)
	require.NoError(t, err)
	assert.Equal(t, cb.ID, got.ID)
	assert.Equal(t, "https://github.com/golang/go", got.RepoURL.String())
	assert.Equal(t, types.StatusPending, got.Status)
	assert.Nil(t, got.IndexedAt)

	byURL, err := s.GetCodebaseByRepoURL(ctx, cb.RepoURL.String())
	require.NoError(t, err)
	assert.Equal(t, cb.ID, byURL.ID)
}

func TestCodebaseDuplicateURL(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	cb := newTestCodebase(t, "https://github.com/golang/go")
	require.NoError(t, s.CreateCodebase(ctx, cb))

	dup := newTestCodebase(t, "https://github.com/golang/go")
	err := s.CreateCodebase(ctx, dup)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCodebaseUpdate(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	cb := newTestCodebase(t, "https://github.com/golang/go")
	require.NoError(t, s.CreateCodebase(ctx, cb))

	cb.Status = types.StatusCloning
	cb.LocalPath = "/repos/golang-go"
	require.NoError(t, s.UpdateCodebase(ctx, cb))

	cb.MarkCompleted(10, 42)
	require.NoError(t, s.UpdateCodebase(ctx, cb))

	got, err := s.GetCodebase(ctx, cb.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.Equal(t, 10, got.FileCount)
	assert.Equal(t, 42, got.ChunkCount)
	require.NotNil(t, got.IndexedAt)
}

func TestCodebaseNotFound(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.GetCodebase(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.UpdateCodebase(ctx, newTestCodebase(t, "https://github.com/a/b"))
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.DeleteCodebase(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListCodebases(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	cb1 := newTestCodebase(t, "https://github.com/a/one")
	cb1.CreatedAt = time.Now().UTC().Add(-time.Hour)
	cb2 := newTestCodebase(t, "https://github.com/a/two")
	require.NoError(t, s.CreateCodebase(ctx, cb1))
	require.NoError(t, s.CreateCodebase(ctx, cb2))

	list, err := s.ListCodebases(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, cb2.ID, list[0].ID, "newest first")
}

func makeChunks(codebaseID string, n int) []types.Chunk {
	chunks := make([]types.Chunk, n)
	for i := 0; i < n; i++ {
		chunks[i] = types.Chunk{
			CodebaseID: codebaseID,
			Seq:        i,
			FilePath:   "main.go",
			StartLine:  i*10 + 1,
			EndLine:    i*10 + 10,
			Content:    "package main",
		}
		chunks[i].ComputeContentHash()
	}
	return chunks
}

func TestReplaceAndListChunks(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	cb := newTestCodebase(t, "https://github.com/a/b")
	require.NoError(t, s.CreateCodebase(ctx, cb))

	require.NoError(t, s.ReplaceChunks(ctx, cb.ID, makeChunks(cb.ID, 3)))

	chunks, err := s.ListChunks(ctx, cb.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, 0, chunks[0].Seq)
	assert.Equal(t, "main.go", chunks[0].FilePath)
	assert.NotEqual(t, [32]byte{}, chunks[0].ContentHash)

	// Replacing swaps the whole set.
	require.NoError(t, s.ReplaceChunks(ctx, cb.ID, makeChunks(cb.ID, 1)))
	chunks, err = s.ListChunks(ctx, cb.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestGetChunksBySeqsPreservesOrder(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	cb := newTestCodebase(t, "https://github.com/a/b")
	require.NoError(t, s.CreateCodebase(ctx, cb))
	require.NoError(t, s.ReplaceChunks(ctx, cb.ID, makeChunks(cb.ID, 5)))

	chunks, err := s.GetChunksBySeqs(ctx, cb.ID, []int{3, 0, 4})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{3, 0, 4}, []int{chunks[0].Seq, chunks[1].Seq, chunks[2].Seq})

	empty, err := s.GetChunksBySeqs(ctx, cb.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEmbeddingsRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	cb := newTestCodebase(t, "https://github.com/a/b")
	require.NoError(t, s.CreateCodebase(ctx, cb))
	require.NoError(t, s.ReplaceChunks(ctx, cb.ID, makeChunks(cb.ID, 2)))

	records := []EmbeddingRecord{
		{ChunkSeq: 0, Vector: []float32{0.1, 0.2, 0.3}, Dimension: 3, Provider: "hash", Model: "hash"},
		{ChunkSeq: 1, Vector: []float32{0.4, 0.5, 0.6}, Dimension: 3, Provider: "hash", Model: "hash"},
	}
	require.NoError(t, s.PutEmbeddings(ctx, cb.ID, records))

	entries, err := s.LoadIndex(ctx, cb.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].Seq)
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3}, entries[0].Vector, 1e-6)

	// Upsert replaces the vector.
	records[0].Vector = []float32{0.9, 0.9, 0.9}
	require.NoError(t, s.PutEmbeddings(ctx, cb.ID, records[:1]))
	entries, err = s.LoadIndex(ctx, cb.ID)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.9, 0.9, 0.9}, entries[0].Vector, 1e-6)
}

func TestLoadIndexEmpty(t *testing.T) {
	s := newTestStorage(t)
	entries, err := s.LoadIndex(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteCodebaseCascades(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	cb := newTestCodebase(t, "https://github.com/a/b")
	require.NoError(t, s.CreateCodebase(ctx, cb))
	require.NoError(t, s.ReplaceChunks(ctx, cb.ID, makeChunks(cb.ID, 2)))
	require.NoError(t, s.PutEmbeddings(ctx, cb.ID, []EmbeddingRecord{
		{ChunkSeq: 0, Vector: []float32{1}, Dimension: 1, Provider: "hash", Model: "hash"},
	}))

	session := &types.ChatSession{
		ID: uuid.NewString(), CodebaseID: cb.ID,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateSession(ctx, session))

	require.NoError(t, s.DeleteCodebase(ctx, cb.ID))

	chunks, err := s.ListChunks(ctx, cb.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	entries, err := s.LoadIndex(ctx, cb.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = s.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	cb := newTestCodebase(t, "https://github.com/a/b")
	require.NoError(t, s.CreateCodebase(ctx, cb))

	now := time.Now().UTC()
	session := &types.ChatSession{
		ID: uuid.NewString(), CodebaseID: cb.ID,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateSession(ctx, session))

	userMsg := types.NewUserMessage("how does the parser work?")
	require.NoError(t, s.AppendMessage(ctx, session.ID, userMsg))

	sources := []types.SourceRef{{Path: "parser/parse.go", Score: 0.91}}
	assistantMsg := types.NewAssistantMessage("it tokenizes first", sources)
	require.NoError(t, s.AppendMessage(ctx, session.ID, assistantMsg))

	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, types.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "how does the parser work?", got.Messages[0].Content)
	assert.Empty(t, got.Messages[0].Sources)
	assert.Equal(t, types.RoleAssistant, got.Messages[1].Role)
	require.Len(t, got.Messages[1].Sources, 1)
	assert.Equal(t, "parser/parse.go", got.Messages[1].Sources[0].Path)
}

func TestSessionTitleAndListing(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	cb := newTestCodebase(t, "https://github.com/a/b")
	require.NoError(t, s.CreateCodebase(ctx, cb))

	now := time.Now().UTC()
	session := &types.ChatSession{
		ID: uuid.NewString(), CodebaseID: cb.ID,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateSession(ctx, session))
	require.NoError(t, s.SetSessionTitle(ctx, session.ID, "parser questions"))
	require.NoError(t, s.AppendMessage(ctx, session.ID, types.NewUserMessage("hi")))

	summaries, err := s.ListSessions(ctx, cb.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "parser questions", summaries[0].Title)
	assert.Equal(t, 1, summaries[0].MessageCount)

	none, err := s.ListSessions(ctx, "other-codebase")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSessionNotFound(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrSessionNotFound)

	err = s.AppendMessage(ctx, "missing", types.NewUserMessage("hi"))
	assert.ErrorIs(t, err, types.ErrSessionNotFound)

	err = s.DeleteSession(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
}

func TestVectorSerializationRoundTrip(t *testing.T) {
	v := []float32{0.0, -1.5, 3.25, 1e-7}
	got := deserializeVector(serializeVector(v))
	assert.Equal(t, v, got)
}
