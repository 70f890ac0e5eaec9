package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/repochat/repochat/pkg/types"
)

const (
	// DefaultBatchSize is the number of texts sent per provider call.
	DefaultBatchSize = 50
	// MaxBatchSize is the hard per-call limit enforced on callers.
	MaxBatchSize = 100

	defaultCacheSize = 10000
)

// Embedder generates embeddings for text.
type Embedder interface {
	// Embed generates a single embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for up to MaxBatchSize texts. The
	// result is index-aligned with texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the provider's vector length.
	Dimension() int

	// Provider returns the provider name.
	Provider() string
}

// Cache is an LRU cache of embeddings keyed by content hash.
type Cache struct {
	lru *lru.Cache[string, []float32]
}

// NewCache creates a cache holding up to size embeddings.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		// Unreachable with a positive size.
		c, _ = lru.New[string, []float32](defaultCacheSize)
	}
	return &Cache{lru: c}
}

// Get returns a copy of the cached vector, guarding against caller mutation.
func (c *Cache) Get(hash string) ([]float32, bool) {
	v, ok := c.lru.Get(hash)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Set stores a vector; eviction is handled by the LRU.
func (c *Cache) Set(hash string, v []float32) { c.lru.Add(hash, v) }

// Len returns the current number of cached entries.
func (c *Cache) Len() int { return c.lru.Len() }

// HashText returns the cache key for text.
func HashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// validateBatch rejects empty batches, empty texts, and oversized batches.
func validateBatch(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", types.ErrEmbedding)
	}
	if len(texts) > MaxBatchSize {
		return fmt.Errorf("%w: batch of %d exceeds limit %d", types.ErrEmbedding, len(texts), MaxBatchSize)
	}
	for i, t := range texts {
		if t == "" {
			return fmt.Errorf("%w: text at index %d is empty", types.ErrEmbedding, i)
		}
	}
	return nil
}

// Normalize scales v to unit length so that inner product equals cosine
// similarity. Zero vectors are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
