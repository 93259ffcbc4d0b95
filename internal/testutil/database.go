package testutil

import (
	"testing"

	"cav-go/internal/database"
)

// NewTestSQLiteStore creates an in-memory SQLite bucket store with migrations
// applied. The store is closed when the test completes.
func NewTestSQLiteStore(t *testing.T) *database.SQLiteStore {
	t.Helper()

	store, err := database.NewSQLiteStore(":memory:", FixedClock())
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
