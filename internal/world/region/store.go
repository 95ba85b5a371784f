package region

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/ocharnyshevich/voxelkeep/internal/world"
)

// DefaultWorkerCount is the default number of concurrent storage
// operations served by a RegionStore.
const DefaultWorkerCount = 4

// Result is a generic deferred result, fulfilled once on a worker
// goroutine and received exactly once by the caller.
type Result[T any] struct {
	ch chan result[T]
}

type result[T any] struct {
	value T
	err   error
}

// Wait blocks until the result is available or ctx is done.
func (r Result[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	select {
	case res := <-r.ch:
		return res.value, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func newResult[T any]() (Result[T], chan result[T]) {
	ch := make(chan result[T], 1)
	return Result[T]{ch: ch}, ch
}

// RegionStore is the asynchronous facade over a RegionCache: every
// operation is dispatched to a bounded worker pool and returns
// immediately with a Result future. Callers must never block a worker
// by waiting on another RegionStore future from inside a dispatched
// task — that is a reentrancy hazard the pool cannot detect.
type RegionStore struct {
	cache *RegionCache
	sem   *semaphore.Weighted
}

// NewRegionStore creates a store backed by cache, serving at most
// workers concurrent operations.
func NewRegionStore(cache *RegionCache, workers int) *RegionStore {
	if workers <= 0 {
		workers = DefaultWorkerCount
	}
	return &RegionStore{cache: cache, sem: semaphore.NewWeighted(int64(workers))}
}

func dispatch[T any](ctx context.Context, s *RegionStore, fn func() (T, error)) Result[T] {
	future, ch := newResult[T]()

	go func() {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			var zero T
			ch <- result[T]{value: zero, err: err}
			return
		}
		defer s.sem.Release(1)
		value, err := fn()
		ch <- result[T]{value: value, err: err}
	}()

	return future
}

// Load resolves the region coordinate for (cx,cz), opens the backing
// file if it exists, and decodes the stored chunk. A missing region file
// or a missing slot both yield (nil, nil): the caller is expected to
// regenerate the chunk.
func (s *RegionStore) Load(ctx context.Context, cx, cz int32) Result[*world.MemoryChunk] {
	return dispatch(ctx, s, func() (*world.MemoryChunk, error) {
		coord, lx, lz := RegionOf(cx, cz)

		rf, exists, err := s.cache.AcquireExisting(coord)
		if err != nil {
			return nil, fmt.Errorf("region: load (%d,%d): %w", cx, cz, err)
		}
		if !exists {
			return nil, nil
		}
		defer s.cache.Release(rf)

		payload, ok, err := rf.Read(lx, lz)
		if err != nil {
			return nil, fmt.Errorf("region: load (%d,%d): %w", cx, cz, err)
		}
		if !ok {
			return nil, nil
		}

		chunk, err := Decode(payload)
		if err != nil {
			return nil, fmt.Errorf("region: decode (%d,%d): %w", cx, cz, err)
		}
		return chunk, nil
	})
}

// Save encodes chunk and writes it to its region file, creating the
// region file if it does not yet exist.
func (s *RegionStore) Save(ctx context.Context, chunk world.Chunk) Result[struct{}] {
	return dispatch(ctx, s, func() (struct{}, error) {
		coord, lx, lz := RegionOf(chunk.ChunkX(), chunk.ChunkZ())

		rf, err := s.cache.Acquire(coord)
		if err != nil {
			return struct{}{}, fmt.Errorf("region: save (%d,%d): %w", chunk.ChunkX(), chunk.ChunkZ(), err)
		}
		defer s.cache.Release(rf)

		payload, err := Encode(chunk)
		if err != nil {
			return struct{}{}, fmt.Errorf("region: encode (%d,%d): %w", chunk.ChunkX(), chunk.ChunkZ(), err)
		}

		if err := rf.Write(lx, lz, payload, nowUnix()); err != nil {
			return struct{}{}, fmt.Errorf("region: save (%d,%d): %w", chunk.ChunkX(), chunk.ChunkZ(), err)
		}
		return struct{}{}, nil
	})
}

// Delete removes a chunk's slot from its region file, if present.
func (s *RegionStore) Delete(ctx context.Context, cx, cz int32) Result[struct{}] {
	return dispatch(ctx, s, func() (struct{}, error) {
		coord, lx, lz := RegionOf(cx, cz)

		rf, exists, err := s.cache.AcquireExisting(coord)
		if err != nil {
			return struct{}{}, fmt.Errorf("region: delete (%d,%d): %w", cx, cz, err)
		}
		if !exists {
			return struct{}{}, nil
		}
		defer s.cache.Release(rf)

		if err := rf.Remove(lx, lz); err != nil {
			return struct{}{}, fmt.Errorf("region: delete (%d,%d): %w", cx, cz, err)
		}
		return struct{}{}, nil
	})
}

// Has reports whether a chunk has a stored slot.
func (s *RegionStore) Has(ctx context.Context, cx, cz int32) Result[bool] {
	return dispatch(ctx, s, func() (bool, error) {
		coord, lx, lz := RegionOf(cx, cz)

		rf, exists, err := s.cache.AcquireExisting(coord)
		if err != nil {
			return false, fmt.Errorf("region: has (%d,%d): %w", cx, cz, err)
		}
		if !exists {
			return false, nil
		}
		defer s.cache.Release(rf)

		return rf.Has(lx, lz), nil
	})
}

// SyncAll flushes every region file currently held open by the cache.
func (s *RegionStore) SyncAll(ctx context.Context) Result[struct{}] {
	return dispatch(ctx, s, func() (struct{}, error) {
		if err := s.cache.SyncAll(); err != nil {
			return struct{}{}, fmt.Errorf("region: sync all: %w", err)
		}
		return struct{}{}, nil
	})
}
