// Package types defines the shared domain types for repochat: codebases,
// chunks, chat sessions, messages, search results, and the error taxonomy
// used across the ingestion pipeline, tool servers, and chat orchestrator.
package types
