package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"cav-go/internal/database"
	"cav-go/internal/testutil"
)

func newTestStore(t *testing.T) *database.SQLiteStore {
	t.Helper()
	store, err := database.NewSQLiteStore(":memory:", testutil.FixedClock())
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, ok, err := store.Get(ctx, "patients"); err != nil || ok {
		t.Fatalf("Get() on empty store = ok %v, err %v; want absent", ok, err)
	}

	if err := store.Set(ctx, "patients", []byte(`[{"id":"p1"}]`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(ctx, "patients", []byte(`[{"id":"p2"}]`)); err != nil {
		t.Fatalf("second Set() error = %v", err)
	}

	data, ok, err := store.Get(ctx, "patients")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	if string(data) != `[{"id":"p2"}]` {
		t.Errorf("Get() = %s, want latest write", data)
	}

	if err := store.Delete(ctx, "patients"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := store.Get(ctx, "patients"); ok {
		t.Error("bucket still present after Delete()")
	}
	if err := store.Delete(ctx, "patients"); err != nil {
		t.Errorf("Delete() of absent bucket error = %v", err)
	}
}

func TestSQLiteStore_List(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, name := range []string{"users", "appointments"} {
		if err := store.Set(ctx, name, []byte(`[1,2,3]`)); err != nil {
			t.Fatalf("Set(%s) error = %v", name, err)
		}
	}

	infos, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 2 || infos[0].Name != "appointments" || infos[1].Name != "users" {
		t.Fatalf("List() = %+v, want appointments then users", infos)
	}
	if infos[0].Size != 7 {
		t.Errorf("Size = %d, want 7", infos[0].Size)
	}
	if infos[0].UpdatedAt != "2024-01-15T10:30:00Z" {
		t.Errorf("UpdatedAt = %q, want fixed clock time", infos[0].UpdatedAt)
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cav.db")

	store, err := database.NewSQLiteStore(path, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := store.Set(ctx, "settings", []byte(`{"theme":"dark"}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	store.Close()

	reopened, err := database.NewSQLiteStore(path, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	if err := reopened.CheckMigrations(); err != nil {
		t.Errorf("CheckMigrations() error = %v", err)
	}
	data, ok, err := reopened.Get(ctx, "settings")
	if err != nil || !ok || string(data) != `{"theme":"dark"}` {
		t.Errorf("Get() after reopen = %s, %v, %v", data, ok, err)
	}
}
