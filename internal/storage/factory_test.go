package storage

import (
	"context"
	"path/filepath"
	"testing"

	"cav-go/internal/config"
)

func TestNewFromConfig(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.StorageConfig{Type: "memory"}},
		{name: "default is memory", cfg: config.StorageConfig{}},
		{name: "filesystem", cfg: config.StorageConfig{Type: "filesystem", Root: filepath.Join(dir, "fs")}},
		{name: "filesystem without root", cfg: config.StorageConfig{Type: "filesystem"}, wantErr: true},
		{name: "sqlite", cfg: config.StorageConfig{Type: "sqlite", DataDir: filepath.Join(dir, "db")}},
		{name: "sqlite without data dir", cfg: config.StorageConfig{Type: "sqlite"}, wantErr: true},
		{name: "badger", cfg: config.StorageConfig{Type: "badger", DataDir: filepath.Join(dir, "kv")}},
		{name: "badger without data dir", cfg: config.StorageConfig{Type: "badger"}, wantErr: true},
		{name: "s3 without bucket", cfg: config.StorageConfig{Type: "s3"}, wantErr: true},
		{name: "unknown", cfg: config.StorageConfig{Type: "floppy"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewFromConfig(context.Background(), tt.cfg, "clinic-a", nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			defer store.Close()
			if err := store.Set(context.Background(), "patients", []byte(`[]`)); err != nil {
				t.Errorf("Set() error = %v", err)
			}
		})
	}
}
