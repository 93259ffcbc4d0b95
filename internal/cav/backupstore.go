package cav

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/goccy/go-json"
)

// DefaultBackupCapacity is the number of backups retained when no capacity is
// configured.
const DefaultBackupCapacity = 50

// BackupStore is the bounded, newest-first list of backups, persisted as a
// single JSON document under BackupsBucket.
type BackupStore struct {
	mu      sync.RWMutex
	backups []*Backup

	store    BucketStore
	logger   Logger
	clock    Clock
	capacity int
}

// NewBackupStore creates an empty BackupStore. Call Load to read persisted
// backups. A capacity below one selects DefaultBackupCapacity.
func NewBackupStore(store BucketStore, logger Logger, clock Clock, capacity int) *BackupStore {
	if capacity <= 0 {
		capacity = DefaultBackupCapacity
	}
	return &BackupStore{store: store, logger: logger, clock: clock, capacity: capacity}
}

// Load replaces the in-memory list with the persisted one.
func (s *BackupStore) Load(ctx context.Context) error {
	data, ok, err := s.store.Get(ctx, BackupsBucket)
	if err != nil {
		return &StorageError{Op: "get", Bucket: BackupsBucket, Err: err}
	}
	var backups []*Backup
	if ok && !isEmptyBucket(data) {
		if err := json.Unmarshal(data, &backups); err != nil {
			return fmt.Errorf("decoding backup list: %w", err)
		}
	}

	s.mu.Lock()
	s.backups = backups
	s.mu.Unlock()

	s.logger.Debug("backup list loaded", "backups", len(backups))
	return nil
}

// Add prepends b and evicts the oldest backups beyond capacity, whatever
// their type. Backups whose IDs are listed in keep, and b itself, are never
// evicted, so the list can briefly exceed capacity when they fill it. It
// returns the IDs of evicted backups. On a persistence failure the in-memory
// list is left unchanged.
func (s *BackupStore) Add(ctx context.Context, b *Backup, keep ...string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]*Backup, 0, len(s.backups)+1)
	next = append(next, b.clone())
	next = append(next, s.backups...)

	var evicted []string
	for i := len(next) - 1; i > 0 && len(next) > s.capacity; i-- {
		if slices.Contains(keep, next[i].ID) {
			continue
		}
		evicted = append(evicted, next[i].ID)
		next = slices.Delete(next, i, i+1)
	}

	if err := s.persist(ctx, next); err != nil {
		return nil, err
	}
	s.backups = next
	if len(evicted) > 0 {
		s.logger.Info("backups evicted over capacity", "count", len(evicted), "capacity", s.capacity)
	}
	return evicted, nil
}

// List returns copies of every backup, newest first. Statuses are as stored;
// use Get to verify a backup's integrity.
func (s *BackupStore) List() []*Backup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Backup, len(s.backups))
	for i, b := range s.backups {
		out[i] = b.clone()
	}
	return out
}

// Get returns a copy of the backup with the given ID. A completed backup
// whose checksum no longer verifies is returned with status corrupted.
func (s *BackupStore) Get(id string) (*Backup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.backups {
		if b.ID != id {
			continue
		}
		out := b.clone()
		if out.Status == BackupStatusCompleted {
			var integrity *IntegrityError
			if err := out.VerifyChecksum(); errors.As(err, &integrity) {
				out.Status = BackupStatusCorrupted
			}
		}
		return out, nil
	}
	return nil, &NotFoundError{Kind: "backup", ID: id}
}

// MarkCorrupted persists the corrupted status for a completed backup.
func (s *BackupStore) MarkCorrupted(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]*Backup, len(s.backups))
	found := false
	for i, b := range s.backups {
		next[i] = b
		if b.ID != id {
			continue
		}
		found = true
		if b.Status == BackupStatusCorrupted {
			return nil
		}
		marked := b.clone()
		if err := marked.transition(BackupStatusCorrupted); err != nil {
			return err
		}
		next[i] = marked
	}
	if !found {
		return &NotFoundError{Kind: "backup", ID: id}
	}
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.backups = next
	return nil
}

// Delete removes the backup with the given ID and reports whether it existed.
func (s *BackupStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]*Backup, 0, len(s.backups))
	for _, b := range s.backups {
		if b.ID != id {
			next = append(next, b)
		}
	}
	if len(next) == len(s.backups) {
		return false, nil
	}
	if err := s.persist(ctx, next); err != nil {
		return false, err
	}
	s.backups = next
	return true, nil
}

// CleanupOlderThan removes backups older than now minus retentionDays and
// returns how many were removed. Full backups are never removed by this
// sweep; only the capacity bound evicts them.
func (s *BackupStore) CleanupOlderThan(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays < 0 {
		return 0, NewValidationError("retentionDays", "must not be negative")
	}
	cutoff := s.clock.Now().AddDate(0, 0, -retentionDays)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]*Backup, 0, len(s.backups))
	for _, b := range s.backups {
		if b.Type == BackupTypeFull || !b.Timestamp.Before(cutoff) {
			next = append(next, b)
		}
	}
	removed := len(s.backups) - len(next)
	if removed == 0 {
		return 0, nil
	}
	if err := s.persist(ctx, next); err != nil {
		return 0, err
	}
	s.backups = next
	return removed, nil
}

func (s *BackupStore) persist(ctx context.Context, backups []*Backup) error {
	data, err := json.Marshal(backups)
	if err != nil {
		return fmt.Errorf("encoding backup list: %w", err)
	}
	if err := s.store.Set(ctx, BackupsBucket, data); err != nil {
		return &StorageError{Op: "set", Bucket: BackupsBucket, Err: err}
	}
	return nil
}
