package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/repochat/repochat/pkg/types"
)

const (
	// DefaultCacheSize bounds the number of cached answers.
	DefaultCacheSize = 512
	// DefaultCacheTTL expires cached answers.
	DefaultCacheTTL = time.Hour
)

type cachedAnswer struct {
	Answer  string
	Sources []types.SourceRef
}

// responseCache remembers finished non-streamed turns keyed by codebase and
// question hash.
type responseCache struct {
	lru *expirable.LRU[string, cachedAnswer]
}

func newResponseCache(size int, ttl time.Duration) *responseCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &responseCache{lru: expirable.NewLRU[string, cachedAnswer](size, nil, ttl)}
}

func cacheKey(codebaseID, question string) string {
	h := sha256.Sum256([]byte(question))
	return codebaseID + ":" + hex.EncodeToString(h[:])
}

func (c *responseCache) get(codebaseID, question string) (cachedAnswer, bool) {
	return c.lru.Get(cacheKey(codebaseID, question))
}

func (c *responseCache) put(codebaseID, question string, answer cachedAnswer) {
	c.lru.Add(cacheKey(codebaseID, question), answer)
}
