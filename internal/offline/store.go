package offline

import (
	"context"
	"sort"
	"sync"
)

// Store holds named caches of response snapshots keyed by request URL. Writes
// to the same key are last-writer-wins. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, cache, key string) (Entry, bool, error)
	// Put stores e, creating the cache when it does not exist yet.
	Put(ctx context.Context, cache, key string, e Entry) error
	Delete(ctx context.Context, cache, key string) (bool, error)
	// Names lists existing caches.
	Names(ctx context.Context) ([]string, error)
	// Drop deletes a cache with all of its entries.
	Drop(ctx context.Context, cache string) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	caches map[string]map[string]Entry
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{caches: map[string]map[string]Entry{}}
}

func (m *MemoryStore) Get(_ context.Context, cache, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.caches[cache][key]
	if !ok {
		return Entry{}, false, nil
	}
	return e.Clone(), true, nil
}

func (m *MemoryStore) Put(_ context.Context, cache, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.caches == nil {
		m.caches = map[string]map[string]Entry{}
	}
	entries, ok := m.caches[cache]
	if !ok {
		entries = map[string]Entry{}
		m.caches[cache] = entries
	}
	entries[key] = e.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, cache, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.caches[cache]
	if !ok {
		return false, nil
	}
	if _, ok := entries[key]; !ok {
		return false, nil
	}
	delete(entries, key)
	return true, nil
}

func (m *MemoryStore) Names(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) Drop(_ context.Context, cache string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.caches, cache)
	return nil
}

// Keys lists the keys held in cache. It exists for inspection in tests and
// admin tooling.
func (m *MemoryStore) Keys(cache string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.caches[cache]))
	for k := range m.caches[cache] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
