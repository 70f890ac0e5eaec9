package storage

import (
	"context"
	"errors"

	"github.com/repochat/repochat/internal/vectorindex"
	"github.com/repochat/repochat/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity.
	ErrAlreadyExists = errors.New("already exists")
)

// EmbeddingRecord is one persisted chunk vector.
type EmbeddingRecord struct {
	ChunkSeq  int
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
}

// Storage defines the persistence surface for codebases, chunks, embeddings,
// and chat sessions.
type Storage interface {
	// Codebase operations.
	CreateCodebase(ctx context.Context, cb *types.Codebase) error
	GetCodebase(ctx context.Context, id string) (*types.Codebase, error)
	GetCodebaseByRepoURL(ctx context.Context, repoURL string) (*types.Codebase, error)
	UpdateCodebase(ctx context.Context, cb *types.Codebase) error
	DeleteCodebase(ctx context.Context, id string) error
	ListCodebases(ctx context.Context) ([]*types.Codebase, error)

	// Chunk operations. ReplaceChunks swaps the full chunk set of a
	// codebase in one transaction; embeddings go with the old chunks.
	ReplaceChunks(ctx context.Context, codebaseID string, chunks []types.Chunk) error
	ListChunks(ctx context.Context, codebaseID string) ([]types.Chunk, error)
	GetChunksBySeqs(ctx context.Context, codebaseID string, seqs []int) ([]types.Chunk, error)

	// Embedding operations.
	PutEmbeddings(ctx context.Context, codebaseID string, records []EmbeddingRecord) error
	LoadIndex(ctx context.Context, codebaseID string) ([]vectorindex.Entry, error)

	// Session operations.
	CreateSession(ctx context.Context, session *types.ChatSession) error
	GetSession(ctx context.Context, id string) (*types.ChatSession, error)
	ListSessions(ctx context.Context, codebaseID string) ([]types.SessionSummary, error)
	AppendMessage(ctx context.Context, sessionID string, msg types.Message) error
	SetSessionTitle(ctx context.Context, sessionID, title string) error
	DeleteSession(ctx context.Context, id string) error

	Close() error
}

var _ vectorindex.Loader = Storage(nil)
