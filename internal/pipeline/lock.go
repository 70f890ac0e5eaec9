package pipeline

import (
	"sync"
	"sync/atomic"
)

// ingestLock provides non-blocking lock semantics using atomic operations.
type ingestLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
func (l *ingestLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock. Must only be called by the goroutine that
// successfully acquired it.
func (l *ingestLock) Release() {
	l.state.Store(0)
}

// Held reports whether the lock is currently acquired.
func (l *ingestLock) Held() bool {
	return l.state.Load() == 1
}

// lockRegistry hands out one ingestLock per codebase id.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*ingestLock
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*ingestLock)}
}

func (r *lockRegistry) get(id string) *ingestLock {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &ingestLock{}
		r.locks[id] = l
	}
	return l
}

func (r *lockRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, id)
}
