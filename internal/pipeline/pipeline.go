package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/repochat/repochat/internal/chunker"
	"github.com/repochat/repochat/internal/embedder"
	"github.com/repochat/repochat/internal/fetcher"
	"github.com/repochat/repochat/internal/logger"
	"github.com/repochat/repochat/internal/storage"
	"github.com/repochat/repochat/internal/vectorindex"
	"github.com/repochat/repochat/pkg/types"
)

// Cloner fetches a repository working copy. Implemented by fetcher.Fetcher.
type Cloner interface {
	Clone(ctx context.Context, repoURL types.RepoURL, id string) (string, error)
}

// DefaultMaxConcurrent bounds how many codebases ingest at once.
const DefaultMaxConcurrent = 2

// Pipeline runs ingestions and owns all codebase state transitions.
type Pipeline struct {
	store    storage.Storage
	cloner   Cloner
	chunker  *chunker.Chunker
	embedder embedder.Embedder
	indexes  *vectorindex.Manager
	log      *logger.Logger

	sem   *semaphore.Weighted
	locks *lockRegistry
	wg    sync.WaitGroup
}

// New creates a pipeline. maxConcurrent values below 1 fall back to
// DefaultMaxConcurrent.
func New(store storage.Storage, cloner Cloner, ch *chunker.Chunker, emb embedder.Embedder,
	indexes *vectorindex.Manager, log *logger.Logger, maxConcurrent int) *Pipeline {
	if maxConcurrent < 1 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Pipeline{
		store:    store,
		cloner:   cloner,
		chunker:  ch,
		embedder: emb,
		indexes:  indexes,
		log:      log,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		locks:    newLockRegistry(),
	}
}

// StartIngest registers a repository and begins ingesting it in the
// background. An existing codebase is returned as-is unless it previously
// failed or force is set, in which case the full chain reruns.
func (p *Pipeline) StartIngest(ctx context.Context, rawURL string, force bool) (*types.Codebase, error) {
	repoURL, err := types.ParseRepoURL(rawURL)
	if err != nil {
		return nil, err
	}

	existing, err := p.store.GetCodebaseByRepoURL(ctx, repoURL.String())
	switch {
	case err == nil:
		return p.restartExisting(ctx, existing, force)
	case errorsIsNotFound(err):
		// New codebase, fall through.
	default:
		return nil, fmt.Errorf("lookup codebase: %w", err)
	}

	cb := &types.Codebase{
		ID:        uuid.NewString(),
		RepoURL:   repoURL,
		Status:    types.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.store.CreateCodebase(ctx, cb); err != nil {
		return nil, err
	}

	p.launch(cb.ID)
	return cb, nil
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

// restartExisting decides what a repeated ingest request means for a known
// codebase.
func (p *Pipeline) restartExisting(ctx context.Context, cb *types.Codebase, force bool) (*types.Codebase, error) {
	if p.locks.get(cb.ID).Held() {
		return cb, nil
	}
	if !cb.Status.Terminal() {
		// Queued but not yet running.
		return cb, nil
	}
	if cb.Status == types.StatusCompleted && !force {
		return cb, nil
	}

	cb.Status = types.StatusPending
	cb.ErrorMessage = ""
	cb.FileCount = 0
	cb.ChunkCount = 0
	cb.IndexedAt = nil
	if err := p.store.UpdateCodebase(ctx, cb); err != nil {
		return nil, err
	}
	p.indexes.Remove(cb.ID)

	p.launch(cb.ID)
	return cb, nil
}

// launch runs one ingestion in the background. The run carries its own
// context so an aborted HTTP request does not cancel it.
func (p *Pipeline) launch(id string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(context.Background(), id)
	}()
}

// Wait blocks until all in-flight ingestions finish.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) run(ctx context.Context, id string) {
	lock := p.locks.get(id)
	if !lock.TryAcquire() {
		return
	}
	defer lock.Release()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer p.sem.Release(1)

	cb, err := p.store.GetCodebase(ctx, id)
	if err != nil {
		p.log.Error("ingest lookup failed", "codebase_id", id, "error", err.Error())
		return
	}

	log := p.log.With("codebase_id", id, "repo", cb.RepoURL.String())
	log.Info("ingestion started")

	if err := p.ingest(ctx, cb, log); err != nil {
		log.Error("ingestion failed", "error", err.Error())
		cb.MarkFailed(err.Error())
		if uerr := p.store.UpdateCodebase(ctx, cb); uerr != nil {
			log.Error("failed to persist failure", "error", uerr.Error())
		}
		return
	}
	log.Info("ingestion completed", "files", cb.FileCount, "chunks", cb.ChunkCount)
}

// ingest runs the stage chain for one codebase. On error the caller records
// the failed state.
func (p *Pipeline) ingest(ctx context.Context, cb *types.Codebase, log *logger.Logger) error {
	// Clone
	if err := p.advance(ctx, cb, types.StatusCloning); err != nil {
		return err
	}
	localPath, err := p.cloner.Clone(ctx, cb.RepoURL, cb.ID)
	if err != nil {
		return err
	}
	cb.LocalPath = localPath

	// Discover and chunk
	if err := p.advance(ctx, cb, types.StatusParsing); err != nil {
		return err
	}
	files, err := fetcher.ListFiles(localPath)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrChunking, err)
	}

	var chunks []types.Chunk
	seq := 0
	fileCount := 0
	for _, relPath := range files {
		content, err := fetcher.ReadFile(localPath, relPath)
		if err != nil {
			log.Warn("skipping unreadable file", "path", relPath, "error", err.Error())
			continue
		}
		fileChunks, next := p.chunker.ChunkFile(cb.ID, relPath, content, seq)
		if len(fileChunks) > 0 {
			fileCount++
		}
		chunks = append(chunks, fileChunks...)
		seq = next
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%w: no indexable content found", types.ErrChunking)
	}
	if err := p.store.ReplaceChunks(ctx, cb.ID, chunks); err != nil {
		return err
	}

	// Embed
	if err := p.advance(ctx, cb, types.StatusEmbedding); err != nil {
		return err
	}
	vectors, err := p.embedAll(ctx, chunks)
	if err != nil {
		return err
	}

	// Index
	if err := p.advance(ctx, cb, types.StatusIndexing); err != nil {
		return err
	}
	records := make([]storage.EmbeddingRecord, len(chunks))
	entries := make([]vectorindex.Entry, len(chunks))
	for i := range chunks {
		records[i] = storage.EmbeddingRecord{
			ChunkSeq:  chunks[i].Seq,
			Vector:    vectors[i],
			Dimension: p.embedder.Dimension(),
			Provider:  p.embedder.Provider(),
			Model:     p.embedder.Provider(),
		}
		entries[i] = vectorindex.Entry{Seq: chunks[i].Seq, Vector: vectors[i]}
	}
	if err := p.store.PutEmbeddings(ctx, cb.ID, records); err != nil {
		return err
	}
	index, err := vectorindex.NewFromEntries(p.embedder.Dimension(), entries)
	if err != nil {
		return err
	}

	// Complete. The index becomes visible only after the final transition.
	cb.MarkCompleted(fileCount, len(chunks))
	if err := p.store.UpdateCodebase(ctx, cb); err != nil {
		return err
	}
	p.indexes.Put(cb.ID, index)
	return nil
}

// embedAll batches chunk contents through the embedder. Any batch error
// aborts the whole ingestion.
func (p *Pipeline) embedAll(ctx context.Context, chunks []types.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedder.DefaultBatchSize {
		end := start + embedder.DefaultBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}
		batch, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// advance persists a single forward state transition.
func (p *Pipeline) advance(ctx context.Context, cb *types.Codebase, target types.IngestStatus) error {
	if !cb.Status.CanAdvanceTo(target) {
		return fmt.Errorf("illegal status transition %s -> %s", cb.Status, target)
	}
	cb.Status = target
	return p.store.UpdateCodebase(ctx, cb)
}

// Status returns the persisted codebase record.
func (p *Pipeline) Status(ctx context.Context, id string) (*types.Codebase, error) {
	cb, err := p.store.GetCodebase(ctx, id)
	if errorsIsNotFound(err) {
		return nil, fmt.Errorf("%w: %s", types.ErrCodebaseNotFound, id)
	}
	return cb, err
}

// List returns all known codebases, newest first.
func (p *Pipeline) List(ctx context.Context) ([]*types.Codebase, error) {
	return p.store.ListCodebases(ctx)
}

// Delete removes a codebase with its chunks, vectors, sessions, index, and
// cloned working copy. Refused while an ingestion is running.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	lock := p.locks.get(id)
	if !lock.TryAcquire() {
		return fmt.Errorf("codebase %s: %w", id, types.ErrIngestInProgress)
	}
	defer lock.Release()

	cb, err := p.store.GetCodebase(ctx, id)
	if errorsIsNotFound(err) {
		return fmt.Errorf("%w: %s", types.ErrCodebaseNotFound, id)
	}
	if err != nil {
		return err
	}

	if err := p.store.DeleteCodebase(ctx, id); err != nil {
		return err
	}
	p.indexes.Remove(id)
	p.locks.remove(id)

	if cb.LocalPath != "" {
		if err := os.RemoveAll(cb.LocalPath); err != nil {
			p.log.Warn("failed to remove working copy", "path", cb.LocalPath, "error", err.Error())
		}
	}
	return nil
}
