package region

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultCacheCapacity is the default number of region files kept open at
// once.
const DefaultCacheCapacity = 32

type cacheEntry struct {
	file     *RegionFile
	refCount int
	evicted  bool // true once the LRU has dropped this entry's slot
}

// RegionCache is a bounded LRU of open RegionFile handles, keyed by
// region coordinate. It exclusively owns every RegionFile it opens:
// callers never hold a RegionFile directly, only a coordinate, and must
// pair every Acquire with a Release of the returned handle.
type RegionCache struct {
	dir string

	mu  sync.Mutex
	lru *simplelru.LRU[RegionCoord, *cacheEntry]
	// active tracks every entry with a live reference, keyed by file
	// pointer rather than coordinate: a coordinate can be re-acquired
	// (opening a fresh entry) while its old entry is still draining from
	// an eviction, so coordinate alone cannot identify which entry a
	// Release call refers to.
	active map[*RegionFile]*cacheEntry

	closedCount atomic.Int64 // testable eviction counter
}

// NewRegionCache creates a cache rooted at dir (the world's regions/
// directory), with the given capacity of simultaneously open files.
func NewRegionCache(dir string, capacity int) (*RegionCache, error) {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}

	rc := &RegionCache{dir: dir, active: make(map[*RegionFile]*cacheEntry)}

	lru, err := simplelru.NewLRU[RegionCoord, *cacheEntry](capacity, rc.onEvict)
	if err != nil {
		return nil, fmt.Errorf("region: new cache: %w", err)
	}
	rc.lru = lru
	return rc, nil
}

// onEvict runs while mu is held (simplelru invokes it synchronously from
// Add). A region with an outstanding reference is left open and marked
// evicted; Release performs the deferred close once the last reference
// drops.
func (rc *RegionCache) onEvict(_ RegionCoord, entry *cacheEntry) {
	if entry.refCount > 0 {
		entry.evicted = true
		return
	}
	rc.closeEntry(entry)
}

func (rc *RegionCache) closeEntry(entry *cacheEntry) {
	entry.file.Close()
	rc.closedCount.Add(1)
}

func (rc *RegionCache) pathFor(coord RegionCoord) string {
	return filepath.Join(rc.dir, fmt.Sprintf("r.%d.%d.vkr", coord.RX, coord.RZ))
}

// Acquire returns the RegionFile for coord, creating it on disk if
// necessary, and increments its reference count. Callers must call
// Release exactly once for every successful Acquire, passing back the
// same *RegionFile.
func (rc *RegionCache) Acquire(coord RegionCoord) (*RegionFile, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.acquireLocked(coord)
}

// AcquireExisting behaves like Acquire but never creates a region file
// that is not already on disk: if coord has no cached entry and no
// backing file exists, it returns (nil, false, nil) rather than
// materializing an empty file as a side effect of a read-only operation.
func (rc *RegionCache) AcquireExisting(coord RegionCoord) (*RegionFile, bool, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if entry, ok := rc.lru.Get(coord); ok {
		entry.refCount++
		rc.active[entry.file] = entry
		return entry.file, true, nil
	}

	if _, err := os.Stat(rc.pathFor(coord)); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("region: stat %s: %w", rc.pathFor(coord), err)
	}

	file, err := rc.acquireLocked(coord)
	if err != nil {
		return nil, false, err
	}
	return file, true, nil
}

// acquireLocked opens (creating if missing) and caches the region file
// for coord. Callers hold rc.mu.
func (rc *RegionCache) acquireLocked(coord RegionCoord) (*RegionFile, error) {
	if entry, ok := rc.lru.Get(coord); ok {
		entry.refCount++
		rc.active[entry.file] = entry
		return entry.file, nil
	}

	file, err := Open(rc.pathFor(coord))
	if err != nil {
		return nil, err
	}

	entry := &cacheEntry{file: file, refCount: 1}
	rc.active[file] = entry
	rc.lru.Add(coord, entry)
	return file, nil
}

// Release decrements the reference count for a previously acquired
// RegionFile. If the entry was evicted from the LRU while still in use,
// Release performs the deferred close once this was the last reference.
func (rc *RegionCache) Release(file *RegionFile) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	entry, ok := rc.active[file]
	if !ok {
		return
	}
	entry.refCount--
	if entry.refCount > 0 {
		return
	}

	delete(rc.active, file)
	if entry.evicted {
		rc.closeEntry(entry)
	}
}

// SyncAll flushes every currently open region file.
func (rc *RegionCache) SyncAll() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for _, coord := range rc.lru.Keys() {
		entry, ok := rc.lru.Peek(coord)
		if !ok {
			continue
		}
		if err := entry.file.Sync(); err != nil {
			return err
		}
	}
	return nil
}

// Clear flushes and closes every open region file and empties the cache.
// Entries still referenced are left to Release's deferred-close path
// rather than being forced shut under an in-flight caller. Purge hands
// every entry to onEvict, which makes that close-or-defer decision.
func (rc *RegionCache) Clear() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.lru.Purge()
}

// ClosedCount reports how many RegionFile.Close calls the cache has made
// due to eviction, for tests asserting the "k insertions past capacity
// causes k closes" property.
func (rc *RegionCache) ClosedCount() int64 { return rc.closedCount.Load() }

// Len reports the number of region files currently held open.
func (rc *RegionCache) Len() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.lru.Len()
}
