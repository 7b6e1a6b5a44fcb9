package storage

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "vkernel.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func TestStore_PutGet(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			if _, ok, err := store.Get(ctx, KeyInodes); err != nil || ok {
				t.Fatalf("fresh store Get = (%v, %v)", ok, err)
			}

			if err := store.Put(ctx, KeyInodes, []byte("v1")); err != nil {
				t.Fatalf("put: %v", err)
			}
			got, ok, err := store.Get(ctx, KeyInodes)
			if err != nil || !ok {
				t.Fatalf("get after put = (%v, %v)", ok, err)
			}
			if !bytes.Equal(got, []byte("v1")) {
				t.Fatalf("got %q", got)
			}

			// Overwrite
			if err := store.Put(ctx, KeyInodes, []byte("v2")); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			got, _, _ = store.Get(ctx, KeyInodes)
			if !bytes.Equal(got, []byte("v2")) {
				t.Fatalf("after overwrite got %q", got)
			}
		})
	}
}

func TestStore_PutAll(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			entries := map[string][]byte{
				KeyInodes:      []byte("i"),
				KeyDirectories: []byte("d"),
				KeyMeta:        []byte("m"),
				KeyMounts:      []byte("mt"),
			}
			if err := store.PutAll(ctx, entries); err != nil {
				t.Fatalf("putall: %v", err)
			}
			for _, key := range SnapshotKeys {
				got, ok, err := store.Get(ctx, key)
				if err != nil || !ok {
					t.Fatalf("key %q missing after PutAll", key)
				}
				if !bytes.Equal(got, entries[key]) {
					t.Fatalf("key %q = %q, want %q", key, got, entries[key])
				}
			}
		})
	}
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vkernel.db")
	ctx := context.Background()

	first, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Put(ctx, KeyMeta, []byte("persisted")); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	got, ok, err := second.Get(ctx, KeyMeta)
	if err != nil || !ok {
		t.Fatalf("reopened store lost key: (%v, %v)", ok, err)
	}
	if string(got) != "persisted" {
		t.Fatalf("got %q", got)
	}
}

func TestSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestMemory_ClosedFails(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Put(ctx, "k", []byte("v")); err == nil {
		t.Fatal("put on closed store succeeded")
	}
	if _, _, err := m.Get(ctx, "k"); err == nil {
		t.Fatal("get on closed store succeeded")
	}
}
