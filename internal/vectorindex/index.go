package vectorindex

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Match is a single query result referencing a chunk by its sequence number
// within the codebase.
type Match struct {
	Seq   int
	Score float64
}

// Entry is one persisted vector used to rebuild an index.
type Entry struct {
	Seq    int
	Vector []float32
}

// Index holds the embeddings of a single codebase and answers cosine
// similarity queries. Safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	dim     int
	seqs    []int
	vectors [][]float32
}

// New creates an empty index for vectors of the given dimension.
func New(dim int) *Index {
	return &Index{dim: dim}
}

// NewFromEntries rebuilds an index from persisted vectors. Entries are
// inserted in slice order, which fixes the tie-break order for queries.
func NewFromEntries(dim int, entries []Entry) (*Index, error) {
	ix := New(dim)
	for _, e := range entries {
		if err := ix.Insert(e.Seq, e.Vector); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

// Insert adds a vector under the given chunk sequence number.
func (ix *Index) Insert(seq int, vector []float32) error {
	if len(vector) != ix.dim {
		return fmt.Errorf("vector dimension %d does not match index dimension %d", len(vector), ix.dim)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.seqs = append(ix.seqs, seq)
	ix.vectors = append(ix.vectors, vector)
	return nil
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.seqs)
}

// Dimension returns the vector length this index accepts.
func (ix *Index) Dimension() int { return ix.dim }

// Query returns up to topK matches ordered by descending cosine similarity.
// Ties keep insertion order. A non-positive topK yields an empty result.
func (ix *Index) Query(vector []float32, topK int) ([]Match, error) {
	if len(vector) != ix.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(vector), ix.dim)
	}
	if topK <= 0 {
		return []Match{}, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	matches := make([]Match, len(ix.seqs))
	for i, v := range ix.vectors {
		matches[i] = Match{Seq: ix.seqs[i], Score: cosineSimilarity(vector, v)}
	}
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Score > matches[b].Score
	})

	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

// cosineSimilarity computes the cosine similarity between two equal-length
// vectors. Zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
