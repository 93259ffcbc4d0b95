package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"cav-go/internal/cav"
	"cav-go/internal/config"
	"cav-go/internal/database"
)

// NewFromConfig creates a BucketStore based on the storage config type.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig, instanceID string, clock cav.Clock) (cav.BucketStore, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem storage requires root to be set")
		}
		store, err := NewFileSystemStore(cfg.Root)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "sqlite":
		store, err := database.NewStoreFromConfig(cfg, instanceID, clock)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "badger":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("badger storage requires data_dir to be set")
		}
		store, err := OpenBadgerStore(filepath.Join(cfg.DataDir, instanceID+".badger"))
		if err != nil {
			return nil, err
		}
		return store, nil
	case "s3":
		store, err := NewS3StoreFromConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
