package types

import "errors"

// Error taxonomy. Callers match with errors.Is after any number of %w wraps.
var (
	// ErrFetch indicates a clone, network, or auth failure while fetching
	// a repository. Terminal for the ingestion pipeline.
	ErrFetch = errors.New("repository fetch failed")

	// ErrChunking indicates unreadable or unsupported content. Recoverable:
	// the pipeline skips the offending file.
	ErrChunking = errors.New("chunking failed")

	// ErrEmbedding indicates an external embedding model failure.
	ErrEmbedding = errors.New("embedding failed")

	// ErrIndexNotFound is returned when querying a codebase that has no
	// vector index. Distinct from a valid empty result.
	ErrIndexNotFound = errors.New("vector index not found")

	// ErrCodebaseNotFound is returned when a codebase id is unknown.
	ErrCodebaseNotFound = errors.New("codebase not found")

	// ErrCodebaseNotReady is returned when retrieval is attempted against a
	// codebase whose ingestion has not reached the completed state.
	ErrCodebaseNotReady = errors.New("codebase not ready")

	// ErrToolNotFound is returned when invoking an unknown tool name.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolArgument is returned when tool arguments fail schema validation.
	// The handler is never executed.
	ErrToolArgument = errors.New("invalid tool argument")

	// ErrGeneration indicates an external LLM failure during a chat turn.
	ErrGeneration = errors.New("generation failed")

	// ErrSessionNotFound is returned when a chat session id is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidRepoURL is returned for repository URLs that are not valid
	// GitHub HTTPS URLs.
	ErrInvalidRepoURL = errors.New("invalid repository URL")

	// ErrStreamBusy is returned when a session already has a generation in
	// flight. Turns are never interleaved.
	ErrStreamBusy = errors.New("generation already in flight for session")

	// ErrIngestInProgress is returned when a codebase operation conflicts
	// with a running ingestion.
	ErrIngestInProgress = errors.New("ingestion in progress")
)
