// Package server exposes the REST, SSE, and WebSocket surface: ingestion
// management under /ingest, chat turns under /chat, and session inspection
// under /sessions. Errors are returned as JSON {error, detail} bodies with
// the status derived from the error taxonomy in pkg/types.
package server
