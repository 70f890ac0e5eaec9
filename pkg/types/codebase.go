package types

import "time"

// IngestStatus tracks a codebase through the ingestion pipeline.
type IngestStatus string

const (
	StatusPending   IngestStatus = "pending"
	StatusCloning   IngestStatus = "cloning"
	StatusParsing   IngestStatus = "parsing"
	StatusEmbedding IngestStatus = "embedding"
	StatusIndexing  IngestStatus = "indexing"
	StatusCompleted IngestStatus = "completed"
	StatusFailed    IngestStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s IngestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// next holds the single legal forward transition for each non-terminal state.
var next = map[IngestStatus]IngestStatus{
	StatusPending:   StatusCloning,
	StatusCloning:   StatusParsing,
	StatusParsing:   StatusEmbedding,
	StatusEmbedding: StatusIndexing,
	StatusIndexing:  StatusCompleted,
}

// CanAdvanceTo reports whether s may transition to target. Stages are strictly
// sequential; failed is reachable from any non-terminal state.
func (s IngestStatus) CanAdvanceTo(target IngestStatus) bool {
	if s.Terminal() {
		return false
	}
	if target == StatusFailed {
		return true
	}
	return next[s] == target
}

// Codebase is one ingested repository and its derived index metadata.
// Mutated only by the ingestion pipeline.
type Codebase struct {
	ID           string
	RepoURL      RepoURL
	LocalPath    string
	Status       IngestStatus
	FileCount    int
	ChunkCount   int
	ErrorMessage string
	CreatedAt    time.Time
	IndexedAt    *time.Time
}

// Ready reports whether the codebase accepts retrieval and chat queries.
func (c *Codebase) Ready() bool {
	return c.Status == StatusCompleted
}

// MarkCompleted records a successful ingestion.
func (c *Codebase) MarkCompleted(fileCount, chunkCount int) {
	now := time.Now().UTC()
	c.Status = StatusCompleted
	c.FileCount = fileCount
	c.ChunkCount = chunkCount
	c.IndexedAt = &now
	c.ErrorMessage = ""
}

// MarkFailed records a pipeline failure with its reason.
func (c *Codebase) MarkFailed(reason string) {
	c.Status = StatusFailed
	c.ErrorMessage = reason
}
