// Package storage provides the cav.BucketStore backends selectable from the
// [storage] config section.
package storage

import (
	"context"
	"sort"
	"sync"

	"cav-go/internal/cav"
)

// MemoryStore is an in-memory BucketStore, useful for tests and ephemeral
// instances. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string][]byte
}

var _ cav.BucketStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, name string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.buckets[name]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (m *MemoryStore) Set(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[name] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, name)
	return nil
}

// Names returns the stored bucket names in lexical order.
func (m *MemoryStore) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.buckets))
	for n := range m.buckets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (m *MemoryStore) Close() error { return nil }
