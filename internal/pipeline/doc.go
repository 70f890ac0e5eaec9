// Package pipeline coordinates the ingestion chain: clone -> discover ->
// chunk -> embed -> index. Each stage transition is persisted so that status
// polls observe progress, and a per-codebase guard keeps ingestion runs
// single-flight while a weighted semaphore bounds how many codebases ingest
// at once.
package pipeline
