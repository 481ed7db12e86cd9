package blob

import (
	"context"
	"errors"
	"testing"
)

func TestFSStoreRoundtrip(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Write(ctx, "snapshots/l1/s1/a.json", []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := store.Read(ctx, "snapshots/l1/s1/a.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("Read = %q, want %q", data, "hello")
	}

	info, err := store.Stat(ctx, "snapshots/l1/s1/a.json")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != 5 {
		t.Errorf("Size = %d, want 5", info.Size)
	}
}

func TestFSStoreNotFound(t *testing.T) {
	store, _ := NewFSStore(t.TempDir())
	ctx := context.Background()

	if _, err := store.Read(ctx, "missing.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read err = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "missing.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete err = %v, want ErrNotFound", err)
	}
	if _, err := store.Stat(ctx, "missing.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Stat err = %v, want ErrNotFound", err)
	}
}

func TestFSStoreListByPrefix(t *testing.T) {
	store, _ := NewFSStore(t.TempDir())
	ctx := context.Background()

	_ = store.Write(ctx, "snapshots/l1/s1/a.json", []byte("a"))
	_ = store.Write(ctx, "snapshots/l1/s1/b.json", []byte("b"))
	_ = store.Write(ctx, "snapshots/l2/s1/c.json", []byte("c"))

	paths, err := store.List(ctx, "snapshots/l1/s1/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("listed %d paths, want 2: %v", len(paths), paths)
	}
	for _, p := range paths {
		if p != "snapshots/l1/s1/a.json" && p != "snapshots/l1/s1/b.json" {
			t.Errorf("unexpected path %q", p)
		}
	}
}

func TestFSStoreOverwrite(t *testing.T) {
	store, _ := NewFSStore(t.TempDir())
	ctx := context.Background()

	_ = store.Write(ctx, "x.json", []byte("first"))
	if err := store.Write(ctx, "x.json", []byte("second")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, _ := store.Read(ctx, "x.json")
	if string(data) != "second" {
		t.Errorf("Read = %q, want %q", data, "second")
	}
}
