package cache

import (
	"context"
	"sync"

	"github.com/retailhub/backend/internal/domain/accounting"
)

// lockEntry is a one-slot semaphore shared by every waiter on a key
type lockEntry struct {
	slot chan struct{}
	refs int
}

// InMemoryEntityLocker implements EntityLocker with a keyed mutex.
// This is suitable for single-instance deployments and testing.
// Entries are removed as soon as no goroutine holds or waits for the key.
type InMemoryEntityLocker struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

// NewInMemoryEntityLocker creates a new in-memory entity locker
func NewInMemoryEntityLocker() *InMemoryEntityLocker {
	return &InMemoryEntityLocker{entries: make(map[string]*lockEntry)}
}

// Lock blocks until key is held or ctx is done
func (l *InMemoryEntityLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{slot: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, e, true) })
	}, nil
}

func (l *InMemoryEntityLocker) release(key string, e *lockEntry, held bool) {
	if held {
		<-e.slot
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Size returns the number of keys currently held or waited on
func (l *InMemoryEntityLocker) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Ensure InMemoryEntityLocker implements EntityLocker
var _ accounting.EntityLocker = (*InMemoryEntityLocker)(nil)
