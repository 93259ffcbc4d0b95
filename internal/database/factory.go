package database

import (
	"fmt"
	"os"
	"path/filepath"

	"cav-go/internal/cav"
	"cav-go/internal/config"
)

// NewStoreFromConfig opens the SQLite bucket store for an instance. The
// database file is <data_dir>/<instanceID>.db.
func NewStoreFromConfig(cfg config.StorageConfig, instanceID string, clock cav.Clock) (*SQLiteStore, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir required for sqlite storage")
	}
	if instanceID == "" {
		return nil, fmt.Errorf("instance id required for sqlite storage")
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return NewSQLiteStore(filepath.Join(cfg.DataDir, instanceID+".db"), clock)
}
