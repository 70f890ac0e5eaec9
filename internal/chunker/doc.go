// Package chunker splits source files into retrieval-sized chunks.
//
// Chunking is deterministic: identical input always yields identical chunk
// boundaries and sequence numbers, so re-ingesting unchanged content is
// idempotent. Boundaries fall on line breaks except for single lines larger
// than the size budget, which are hard-split rather than silently truncated.
package chunker
