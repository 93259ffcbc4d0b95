package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cav-go/internal/cav"
	"cav-go/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements cav.BucketStore on a single SQLite table, one row
// per bucket.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	clock cav.Clock
}

var _ cav.BucketStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path and migrates
// it to the latest schema. path can be a file path or ":memory:".
func NewSQLiteStore(path string, clock cav.Clock) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	if clock == nil {
		clock = cav.RealClock{}
	}
	return &SQLiteStore{db: db, path: path, clock: clock}, nil
}

// OpenConnection opens and configures a SQLite database connection.
// SQLite allows a single writer, and every connection to ":memory:" is a
// distinct database, so the pool is limited to one connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

func (s *SQLiteStore) Get(ctx context.Context, name string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM buckets WHERE name = ?", name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading bucket %q: %w", name, err)
	}
	return data, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, name string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO buckets (name, data, size, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET data = excluded.data, size = excluded.size, updated_at = excluded.updated_at`,
		name, data, len(data), s.clock.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("writing bucket %q: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM buckets WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting bucket %q: %w", name, err)
	}
	return nil
}

// BucketInfo describes one stored bucket.
type BucketInfo struct {
	Name      string
	Size      int64
	UpdatedAt string
}

// List returns every stored bucket ordered by name.
func (s *SQLiteStore) List(ctx context.Context) ([]BucketInfo, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, size, updated_at FROM buckets ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing buckets: %w", err)
	}
	defer rows.Close()

	var out []BucketInfo
	for rows.Next() {
		var info BucketInfo
		if err := rows.Scan(&info.Name, &info.Size, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning bucket row: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
