package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ocharnyshevich/voxelkeep/internal/world"
	"github.com/ocharnyshevich/voxelkeep/internal/world/region"
)

const (
	// AutoSaveInterval is the period between scheduled auto-saves.
	AutoSaveInterval = 30 * time.Second
	// ChunkSaveBatchSize is the number of dirty chunks processed per batch.
	ChunkSaveBatchSize = 50
	// chunkSaveConcurrency bounds how many chunk saves run in parallel
	// within one batch.
	chunkSaveConcurrency = 4
	// slowSaveThreshold is the auto-save duration past which a SlowSave
	// warning is logged.
	slowSaveThreshold = 5 * time.Second
	// flushTimeout bounds FlushSavesBlocking.
	flushTimeout = 15 * time.Second
)

// LoadResult is the outcome of loading a world: metadata is always
// present (a missing world.dat is a load failure), player state is
// optional.
type LoadResult struct {
	WorldMeta         *WorldMetadata
	PlayerState       *world.PlayerState
	PlayerStateExists bool
}

// SaveService coordinates whole-world saves and loads, schedules
// auto-save, and provides a blocking flush for shutdown. It is the sole
// owner of the RegionStore it wraps.
type SaveService struct {
	log      *slog.Logger
	worldDir string
	store    *region.RegionStore

	mu        sync.Mutex
	meta      *WorldMetadata
	player    world.Player
	liveWorld world.World

	autoSaveInProgress atomic.Bool
	autoSaveStop       chan struct{}
	autoSaveDone       chan struct{}

	wg sync.WaitGroup // outstanding save operations, for FlushSavesBlocking
}

// NewSaveService creates a service persisting to worldDir, dispatching
// chunk I/O through store.
func NewSaveService(log *slog.Logger, worldDir string, store *region.RegionStore) *SaveService {
	return &SaveService{log: log, worldDir: worldDir, store: store}
}

// Initialize binds the service to the in-memory world/player state and
// the metadata record that will be mutated and persisted by subsequent
// saves.
func (s *SaveService) Initialize(meta *WorldMetadata, player world.Player, liveWorld world.World) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = meta
	s.player = player
	s.liveWorld = liveWorld
}

func (s *SaveService) worldDatPath() string     { return filepath.Join(s.worldDir, "world.dat") }
func (s *SaveService) playerDatPath() string    { return filepath.Join(s.worldDir, "player.dat") }
func (s *SaveService) entitiesDatPath() string  { return filepath.Join(s.worldDir, "entities.dat") }

// LoadWorld reads world metadata (required) and player state (optional).
// Chunks themselves are loaded on demand through the RegionStore.
func (s *SaveService) LoadWorld(ctx context.Context) (LoadResult, error) {
	meta, err := LoadWorldMetadata(s.worldDatPath())
	if err != nil {
		return LoadResult{}, err
	}

	player, exists, err := LoadPlayerState(s.playerDatPath())
	if err != nil {
		return LoadResult{}, err
	}

	return LoadResult{WorldMeta: meta, PlayerState: player, PlayerStateExists: exists}, nil
}

// StartAutoSave schedules a periodic save at AutoSaveInterval. Later
// calls while already running are no-ops.
func (s *SaveService) StartAutoSave(ctx context.Context) {
	s.mu.Lock()
	if s.autoSaveStop != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	s.autoSaveStop = stop
	s.autoSaveDone = done
	s.mu.Unlock()

	go s.autoSaveLoop(ctx, stop, done)
}

func (s *SaveService) autoSaveLoop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(AutoSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runAutoSaveTick(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runAutoSaveTick is the overlap-guarded entry point: a tick that finds
// a save already in progress is skipped, not queued, to keep backlog
// bounded under sustained I/O pressure.
func (s *SaveService) runAutoSaveTick(ctx context.Context) {
	if !s.autoSaveInProgress.CompareAndSwap(false, true) {
		s.log.Warn("auto-save tick skipped: previous auto-save still running")
		return
	}
	defer s.autoSaveInProgress.Store(false)

	start := time.Now()
	if err := s.SaveAll(ctx); err != nil {
		s.log.Error("auto-save failed", "error", err)
		return
	}

	elapsed := time.Since(start)
	if elapsed > slowSaveThreshold {
		s.log.Warn("slow auto-save", "elapsed", elapsed)
	}

	s.mu.Lock()
	if s.meta != nil {
		now := time.Now().UnixMilli()
		if s.meta.LastPlayedMs != 0 {
			s.meta.TotalPlayTimeMs += now - s.meta.LastPlayedMs
		}
		s.meta.LastPlayedMs = now
	}
	s.mu.Unlock()
}

// StopAutoSave cancels the schedule. An in-flight save continues to
// completion.
func (s *SaveService) StopAutoSave() {
	s.mu.Lock()
	stop, done := s.autoSaveStop, s.autoSaveDone
	s.autoSaveStop, s.autoSaveDone = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// SaveAll persists metadata, player state, and all dirty chunks,
// returning only once every piece has been durably written. A metadata
// write failure aborts the whole call; per-chunk failures do not.
func (s *SaveService) SaveAll(ctx context.Context) error {
	s.wg.Add(1)
	defer s.wg.Done()

	s.mu.Lock()
	meta := s.meta
	player := s.player
	s.mu.Unlock()

	if meta != nil {
		if err := SaveWorldMetadata(s.worldDatPath(), meta); err != nil {
			return fmt.Errorf("storage: save_all metadata: %w", err)
		}
	}

	if player != nil {
		state := player.State()
		if err := SavePlayerState(s.playerDatPath(), &state); err != nil {
			return fmt.Errorf("storage: save_all player: %w", err)
		}
	}

	if err := s.SaveDirtyChunks(ctx); err != nil {
		return err
	}

	if _, err := s.store.SyncAll(ctx).Wait(ctx); err != nil {
		return fmt.Errorf("storage: save_all sync: %w", err)
	}

	return nil
}

// SaveDirtyChunks splits the world's dirty set into fixed-size batches
// and saves each batch with bounded parallelism. A per-chunk failure is
// logged and leaves that chunk dirty for the next cycle; it never aborts
// the batch.
func (s *SaveService) SaveDirtyChunks(ctx context.Context) error {
	s.mu.Lock()
	liveWorld := s.liveWorld
	s.mu.Unlock()
	if liveWorld == nil {
		return nil
	}

	dirty := liveWorld.DirtyChunks()

	for start := 0; start < len(dirty); start += ChunkSaveBatchSize {
		end := start + ChunkSaveBatchSize
		if end > len(dirty) {
			end = len(dirty)
		}
		if err := s.saveBatch(ctx, dirty[start:end]); err != nil {
			return err
		}
	}

	return nil
}

func (s *SaveService) saveBatch(ctx context.Context, batch []world.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chunkSaveConcurrency)

	for _, c := range batch {
		c := c
		g.Go(func() error {
			if err := s.saveOneChunk(gctx, c); err != nil {
				s.log.Error("chunk save failed", "cx", c.ChunkX(), "cz", c.ChunkZ(), "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (s *SaveService) saveOneChunk(ctx context.Context, c world.Chunk) error {
	if _, err := s.store.Save(ctx, c).Wait(ctx); err != nil {
		return err
	}
	c.MarkClean()
	return nil
}

// SaveChunk force-saves a single chunk and marks it clean on success.
func (s *SaveService) SaveChunk(ctx context.Context, c world.Chunk) error {
	s.wg.Add(1)
	defer s.wg.Done()
	return s.saveOneChunk(ctx, c)
}

// FlushSavesBlocking waits up to 15 seconds for all outstanding save
// operations to drain, logging reason and any timeout.
func (s *SaveService) FlushSavesBlocking(reason string) {
	s.log.Info("flushing saves", "reason", reason)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("flush complete", "reason", reason)
	case <-time.After(flushTimeout):
		s.log.Warn("flush timed out", "reason", reason, "timeout", flushTimeout)
	}
}

// Close stops auto-save and performs a final blocking flush of the saves
// started through SaveAll and SaveChunk. It does not wait for RegionStore
// operations issued directly on the store, and does not shut the store's
// worker pool down.
func (s *SaveService) Close() {
	s.StopAutoSave()
	s.FlushSavesBlocking("service close")
}
