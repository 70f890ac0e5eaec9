package vectorindex

import (
	"context"
	"fmt"
	"sync"

	"github.com/repochat/repochat/pkg/types"
)

// Loader supplies persisted vectors for a codebase, ordered by chunk
// sequence number. An empty result means no index exists for the id.
type Loader interface {
	LoadIndex(ctx context.Context, codebaseID string) ([]Entry, error)
}

// Manager caches one Index per codebase and rebuilds missing indexes from
// the loader on first access.
type Manager struct {
	mu      sync.RWMutex
	indexes map[string]*Index
	loader  Loader
}

// NewManager creates a manager. loader may be nil, in which case only
// indexes registered with Put are served.
func NewManager(loader Loader) *Manager {
	return &Manager{
		indexes: make(map[string]*Index),
		loader:  loader,
	}
}

// Put registers a freshly built index for a codebase, replacing any
// previous one.
func (m *Manager) Put(codebaseID string, ix *Index) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexes[codebaseID] = ix
}

// Get returns the index for a codebase, loading it from persisted vectors
// when it is not resident. Unknown ids yield ErrIndexNotFound.
func (m *Manager) Get(ctx context.Context, codebaseID string) (*Index, error) {
	m.mu.RLock()
	ix, ok := m.indexes[codebaseID]
	m.mu.RUnlock()
	if ok {
		return ix, nil
	}
	if m.loader == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrIndexNotFound, codebaseID)
	}

	entries, err := m.loader.LoadIndex(ctx, codebaseID)
	if err != nil {
		return nil, fmt.Errorf("load index for %s: %w", codebaseID, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrIndexNotFound, codebaseID)
	}

	loaded, err := NewFromEntries(len(entries[0].Vector), entries)
	if err != nil {
		return nil, fmt.Errorf("rebuild index for %s: %w", codebaseID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another goroutine may have loaded it while we were reading.
	if existing, ok := m.indexes[codebaseID]; ok {
		return existing, nil
	}
	m.indexes[codebaseID] = loaded
	return loaded, nil
}

// Remove evicts a codebase's index, if resident.
func (m *Manager) Remove(codebaseID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.indexes, codebaseID)
}
