// Package vectorindex provides per-codebase in-memory similarity indexes
// over chunk embeddings, plus a manager that lazily rebuilds indexes from
// persisted vectors on first access.
package vectorindex
