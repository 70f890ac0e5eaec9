// Package storage persists codebases, chunks, embeddings, and chat sessions
// in SQLite.
//
// The database runs in WAL mode with a single writer connection. Embedding
// vectors are stored as little-endian float32 blobs next to their chunks, so
// an index can be rebuilt from disk without re-embedding. Schema changes go
// through versioned migrations tracked in the schema_version table.
package storage
