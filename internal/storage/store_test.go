package storage

import (
	"context"
	"path/filepath"
	"testing"

	"cav-go/internal/cav"
)

// exerciseStore runs the behaviour every BucketStore must share.
func exerciseStore(t *testing.T, store cav.BucketStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing bucket is absent", func(t *testing.T) {
		data, ok, err := store.Get(ctx, "patients")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if ok || data != nil {
			t.Errorf("Get() = %q, %v; want nil, false", data, ok)
		}
	})

	t.Run("set then get", func(t *testing.T) {
		tests := []struct {
			name   string
			bucket string
			data   string
		}{
			{name: "array", bucket: "patients", data: `[{"id":"p1"}]`},
			{name: "object", bucket: "systemSettings", data: `{"theme":"dark"}`},
			{name: "empty array", bucket: "appointments", data: `[]`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if err := store.Set(ctx, tt.bucket, []byte(tt.data)); err != nil {
					t.Fatalf("Set() error = %v", err)
				}
				got, ok, err := store.Get(ctx, tt.bucket)
				if err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				if !ok || string(got) != tt.data {
					t.Errorf("Get() = %q, %v; want %q, true", got, ok, tt.data)
				}
			})
		}
	})

	t.Run("set overwrites", func(t *testing.T) {
		if err := store.Set(ctx, "clinics", []byte(`["a"]`)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if err := store.Set(ctx, "clinics", []byte(`["b"]`)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		got, _, _ := store.Get(ctx, "clinics")
		if string(got) != `["b"]` {
			t.Errorf("Get() = %q, want %q", got, `["b"]`)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := store.Set(ctx, "documents", []byte(`[1]`)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if err := store.Delete(ctx, "documents"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, ok, _ := store.Get(ctx, "documents"); ok {
			t.Error("bucket still present after Delete()")
		}
		if err := store.Delete(ctx, "documents"); err != nil {
			t.Errorf("Delete() of missing bucket error = %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseStore(t, store)

	t.Run("returned data is a copy", func(t *testing.T) {
		ctx := context.Background()
		store.Set(ctx, "users", []byte(`["u1"]`))
		got, _, _ := store.Get(ctx, "users")
		got[0] = 'X'
		again, _, _ := store.Get(ctx, "users")
		if string(again) != `["u1"]` {
			t.Errorf("stored data mutated through returned slice: %q", again)
		}
	})
}

func TestFileSystemStore(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileSystemStore(root)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	exerciseStore(t, store)

	if err := store.ValidateSetup(); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}

	t.Run("reopened store sees data", func(t *testing.T) {
		ctx := context.Background()
		store.Set(ctx, "invoices", []byte(`[7]`))
		reopened, err := NewFileSystemStore(root)
		if err != nil {
			t.Fatalf("NewFileSystemStore() error = %v", err)
		}
		got, ok, _ := reopened.Get(ctx, "invoices")
		if !ok || string(got) != `[7]` {
			t.Errorf("Get() = %q, %v; want [7], true", got, ok)
		}
	})

	t.Run("rejects path-like names", func(t *testing.T) {
		for _, name := range []string{"", "..", "a/b", `a\b`} {
			if err := store.Set(context.Background(), name, []byte(`[]`)); err == nil {
				t.Errorf("Set(%q) expected error", name)
			}
		}
	})

	t.Run("no temp files left behind", func(t *testing.T) {
		matches, _ := filepath.Glob(filepath.Join(root, "buckets", ".tmp-*"))
		if len(matches) != 0 {
			t.Errorf("temp files left: %v", matches)
		}
	})
}

func TestBadgerStore(t *testing.T) {
	store, err := OpenBadgerStore("")
	if err != nil {
		t.Fatalf("OpenBadgerStore() error = %v", err)
	}
	defer store.Close()
	exerciseStore(t, store)

	names, err := store.Names()
	if err != nil {
		t.Fatalf("Names() error = %v", err)
	}
	want := []string{"appointments", "clinics", "patients", "systemSettings"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
