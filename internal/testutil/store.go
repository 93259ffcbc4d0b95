package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"

	"cav-go/internal/cav"
)

// ErrInjected is returned by FailingStore for the buckets it is told to fail.
var ErrInjected = errors.New("injected storage failure")

// FailingStore wraps a BucketStore and fails writes (and optionally reads)
// for selected buckets.
type FailingStore struct {
	cav.BucketStore

	mu       sync.Mutex
	failSet  map[string]bool
	failOnce map[string]bool
	failGet  map[string]bool
	setCalls map[string]int
}

var _ cav.BucketStore = (*FailingStore)(nil)

// NewFailingStore wraps inner. No bucket fails until configured.
func NewFailingStore(inner cav.BucketStore) *FailingStore {
	return &FailingStore{
		BucketStore: inner,
		failSet:     make(map[string]bool),
		failOnce:    make(map[string]bool),
		failGet:     make(map[string]bool),
		setCalls:    make(map[string]int),
	}
}

// FailSet makes Set fail for the named buckets.
func (s *FailingStore) FailSet(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		s.failSet[n] = true
	}
}

// FailGet makes Get fail for the named buckets.
func (s *FailingStore) FailGet(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		s.failGet[n] = true
	}
}

// FailSetOnce makes only the next Set of the named bucket fail.
func (s *FailingStore) FailSetOnce(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOnce[name] = true
}

// Heal clears every configured failure.
func (s *FailingStore) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.failSet)
	clear(s.failOnce)
	clear(s.failGet)
}

// SetCalls reports how many times Set was called for name.
func (s *FailingStore) SetCalls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setCalls[name]
}

func (s *FailingStore) Get(ctx context.Context, name string) ([]byte, bool, error) {
	s.mu.Lock()
	fail := s.failGet[name]
	s.mu.Unlock()
	if fail {
		return nil, false, ErrInjected
	}
	return s.BucketStore.Get(ctx, name)
}

func (s *FailingStore) Set(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	s.setCalls[name]++
	fail := s.failSet[name] || s.failOnce[name]
	delete(s.failOnce, name)
	s.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return s.BucketStore.Set(ctx, name, data)
}

// SeedBuckets writes raw JSON documents into store.
func SeedBuckets(t *testing.T, store cav.BucketStore, buckets map[string]string) {
	t.Helper()
	for name, doc := range buckets {
		if err := store.Set(context.Background(), name, []byte(doc)); err != nil {
			t.Fatalf("seeding bucket %s: %v", name, err)
		}
	}
}

// BucketContents reads a bucket as a string, failing the test on error.
func BucketContents(t *testing.T, store cav.BucketStore, name string) (string, bool) {
	t.Helper()
	data, ok, err := store.Get(context.Background(), name)
	if err != nil {
		t.Fatalf("reading bucket %s: %v", name, err)
	}
	return string(data), ok
}
