// Package embedder maps text to fixed-length vectors using an external
// embedding model. Providers batch requests to amortize call overhead, retry
// transient failures with exponential backoff, and cache results by content
// hash. Any unrecovered provider error wraps types.ErrEmbedding.
package embedder
