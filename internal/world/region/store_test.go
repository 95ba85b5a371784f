package region

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ocharnyshevich/voxelkeep/internal/world"
)

func newTestStore(t *testing.T) *RegionStore {
	t.Helper()
	cache, err := NewRegionCache(t.TempDir(), 8)
	if err != nil {
		t.Fatalf("NewRegionCache: %v", err)
	}
	t.Cleanup(cache.Clear)
	return NewRegionStore(cache, 4)
}

func TestRegionStoreSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	c := world.NewMemoryChunk(40, -12)
	c.SetBlock(1, 1, 1, world.BlockType(5))

	if _, err := store.Save(ctx, c).Wait(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(ctx, 40, -12).Wait(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a chunk, got nil")
	}
	if got := loaded.GetBlock(1, 1, 1); got != world.BlockType(5) {
		t.Fatalf("GetBlock = %d, want 5", got)
	}
}

func TestRegionStoreLoadMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	loaded, err := store.Load(ctx, 99, 99).Wait(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != nil {
		t.Fatal("expected nil for a missing chunk")
	}
}

func TestRegionStoreHasAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	c := world.NewMemoryChunk(5, 5)
	if _, err := store.Save(ctx, c).Wait(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	has, err := store.Has(ctx, 5, 5).Wait(ctx)
	if err != nil || !has {
		t.Fatalf("Has = %v, %v, want true, nil", has, err)
	}

	if _, err := store.Delete(ctx, 5, 5).Wait(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	has, err = store.Has(ctx, 5, 5).Wait(ctx)
	if err != nil || has {
		t.Fatalf("Has after delete = %v, %v, want false, nil", has, err)
	}
}

func TestRegionStoreReadPathDoesNotCreateRegionFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cache, err := NewRegionCache(dir, 8)
	if err != nil {
		t.Fatalf("NewRegionCache: %v", err)
	}
	t.Cleanup(cache.Clear)
	store := NewRegionStore(cache, 4)

	if _, err := store.Load(ctx, 1, 1).Wait(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := store.Has(ctx, 1, 1).Wait(ctx); err != nil {
		t.Fatalf("Has: %v", err)
	}
	if _, err := store.Delete(ctx, 1, 1).Wait(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	coord, _, _ := RegionOf(1, 1)
	path := filepath.Join(dir, fmt.Sprintf("r.%d.%d.vkr", coord.RX, coord.RZ))
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no region file at %s after read-only ops, stat err = %v", path, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files created by read-only ops, found %v", entries)
	}
}

func TestRegionStoreConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var futures []Result[struct{}]
	for i := int32(0); i < 40; i++ {
		c := world.NewMemoryChunk(i, i*2)
		futures = append(futures, store.Save(ctx, c))
	}
	for _, f := range futures {
		if _, err := f.Wait(ctx); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	for i := int32(0); i < 40; i++ {
		loaded, err := store.Load(ctx, i, i*2).Wait(ctx)
		if err != nil {
			t.Fatalf("Load(%d): %v", i, err)
		}
		if loaded == nil {
			t.Fatalf("chunk (%d,%d) missing after concurrent saves", i, i*2)
		}
	}
}
