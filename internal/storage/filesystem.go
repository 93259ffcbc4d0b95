package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cav-go/internal/cav"
)

// FileSystemStore keeps each bucket in its own JSON file:
//
//	<root>/
//	  buckets/
//	    <name>.json
//
// Writes are atomic (temp file + rename), so a crash never leaves a
// half-written bucket behind.
type FileSystemStore struct {
	root      string
	bucketDir string
}

var _ cav.BucketStore = (*FileSystemStore)(nil)

// NewFileSystemStore creates a store rooted at root, creating the directory
// structure if needed.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	bucketDir := filepath.Join(root, "buckets")
	if err := os.MkdirAll(bucketDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create bucket directory: %w", err)
	}
	return &FileSystemStore{root: root, bucketDir: bucketDir}, nil
}

func (s *FileSystemStore) Get(_ context.Context, name string) ([]byte, bool, error) {
	path, err := s.pathFor(name)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read bucket %q: %w", name, err)
	}
	return data, true, nil
}

func (s *FileSystemStore) Set(_ context.Context, name string, data []byte) error {
	path, err := s.pathFor(name)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, bytes.NewReader(data), int64(len(data)))
}

func (s *FileSystemStore) Delete(_ context.Context, name string) error {
	path, err := s.pathFor(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete bucket %q: %w", name, err)
	}
	return nil
}

// ValidateSetup verifies that the store directories are accessible.
func (s *FileSystemStore) ValidateSetup() error {
	for _, dir := range []string{s.root, s.bucketDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("store directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("store path is not a directory: %s", dir)
		}
	}
	return nil
}

func (s *FileSystemStore) Close() error { return nil }

// pathFor maps a bucket name to its file, rejecting names that would escape
// the bucket directory.
func (s *FileSystemStore) pathFor(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid bucket name %q", name)
	}
	return filepath.Join(s.bucketDir, name+".json"), nil
}

// writeFileAtomic writes r to destPath via a temp file in the same directory.
func writeFileAtomic(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
