package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"cav-go/internal/cav"
)

const bucketKeyPrefix = "bucket:"

// BadgerStore keeps buckets in an embedded Badger key-value database, one key
// per bucket.
type BadgerStore struct {
	db *badger.DB
}

var _ cav.BucketStore = (*BadgerStore)(nil)

// OpenBadgerStore opens the database in dir. An empty dir opens an in-memory
// database.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already open database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) Get(_ context.Context, name string) ([]byte, bool, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(bucketKeyPrefix + name))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get bucket %q: %w", name, err)
	}
	return data, true, nil
}

func (s *BadgerStore) Set(_ context.Context, name string, data []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(bucketKeyPrefix+name), data)
	})
	if err != nil {
		return fmt.Errorf("set bucket %q: %w", name, err)
	}
	return nil
}

func (s *BadgerStore) Delete(_ context.Context, name string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(bucketKeyPrefix + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("delete bucket %q: %w", name, err)
	}
	return nil
}

// Names returns the stored bucket names in key order.
func (s *BadgerStore) Names() ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(bucketKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, string(it.Item().Key()[len(bucketKeyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	return names, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
