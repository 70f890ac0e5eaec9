package types

// SearchResult is a single ranked retrieval hit.
type SearchResult struct {
	Chunk Chunk
	Score float64
	Rank  int // 1-based position in the result set
}
